package agentsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/devtools_bridge/internal/netutil"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

const (
	defaultScanHost = "127.0.0.1"
	defaultFromPort = 8765
	defaultToPort   = 8774
)

// Discover probes the candidate port range for a bridge whose identity
// document carries the expected signature. Ports are tried in order and the
// first match wins, mirroring the bridge's own bind fallback.
func Discover(ctx context.Context, host string, fromPort, toPort int) (string, error) {
	if host == "" {
		host = defaultScanHost
	}
	if fromPort <= 0 {
		fromPort = defaultFromPort
	}
	if toPort < fromPort {
		toPort = fromPort + (defaultToPort - defaultFromPort)
	}

	for _, addr := range netutil.CandidateRange(host, fromPort, toPort) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		base := "http://" + addr
		id, err := fetchIdentity(ctx, base)
		if err != nil {
			slog.Debug("identity probe failed", "addr", addr, "error", err)
			continue
		}
		if id.Signature != wire.Signature {
			slog.Debug("identity probe signature mismatch", "addr", addr, "name", id.Name)
			continue
		}
		slog.Info("bridge discovered", "addr", addr, "server", id.Name, "server_version", id.Version)
		return base, nil
	}
	return "", fmt.Errorf("no bridge found on %s ports %d-%d", host, fromPort, toPort)
}

func fetchIdentity(ctx context.Context, base string) (wire.Identity, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/.identity", nil)
	if err != nil {
		return wire.Identity{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return wire.Identity{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wire.Identity{}, fmt.Errorf("identity: HTTP %d", resp.StatusCode)
	}

	var id wire.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return wire.Identity{}, err
	}
	return id, nil
}
