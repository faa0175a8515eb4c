package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/devtools_bridge/internal/agentsim"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

func main() {
	server := flag.String("server", "", "bridge base URL, e.g. http://127.0.0.1:8765 (empty scans the port range)")
	host := flag.String("host", "127.0.0.1", "host to scan when no server is given")
	fromPort := flag.Int("from-port", 8765, "first port of the discovery scan")
	toPort := flag.Int("to-port", 8774, "last port of the discovery scan")
	version := flag.String("version", wire.Version, "protocol version to advertise")
	interval := flag.Duration("telemetry-interval", 2*time.Second, "gap between synthetic telemetry frames (0 disables)")
	reconnect := flag.Bool("reconnect", false, "redial after a lost connection instead of exiting")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	opts := agentsim.Options{
		ServerURL:         *server,
		Host:              *host,
		FromPort:          *fromPort,
		ToPort:            *toPort,
		Version:           *version,
		TelemetryInterval: *interval,
	}

	for {
		err := agentsim.Run(ctx, opts)
		if ctx.Err() != nil {
			return
		}
		if !*reconnect {
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "agentsim failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "agentsim connection lost: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
