// Package netutil selects the bridge bind address. Agents discover the
// bridge by probing a small port range for its identity endpoint, so the
// bridge binds the first free address out of the same candidate window.
package netutil

import (
	"errors"
	"fmt"
	"net"
)

// CandidateRange builds host:port candidates for the inclusive port range.
// This is the window discovery-probing agents walk.
func CandidateRange(host string, fromPort, toPort int) []string {
	if toPort < fromPort {
		return nil
	}
	addrs := make([]string, 0, toPort-fromPort+1)
	for port := fromPort; port <= toPort; port++ {
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, port))
	}
	return addrs
}

// SelectBindAddr picks an available bind address from the preferred address
// and the fallback candidates.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", errors.New("no available bridge bind addresses")
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
