package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"

	"github.com/dgnsrekt/devtools_bridge/internal/bridge"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// agentSocketHandler upgrades /ws requests and hands the raw socket to the
// connection lifecycle. Replies feed the correlator; telemetry feeds the
// store and, when enabled, the SSE relay.
func agentSocketHandler(sock AgentSocket) http.HandlerFunc {
	cfg := bridge.ConnConfig{
		Registry:          sock.Registry,
		HeartbeatInterval: sock.HeartbeatInterval,
		Routes: map[wire.Kind]bridge.Handler{
			wire.KindReply: func(_ *bridge.Conn, msg wire.Message) {
				sock.Correlator.HandleReply(msg)
			},
			wire.KindTelemetry: func(c *bridge.Conn, msg wire.Message) {
				recorded := sock.Telemetry.Ingest(c.ID(), msg)
				if sock.Relay == nil {
					return
				}
				for _, e := range recorded {
					payload, err := json.Marshal(e)
					if err != nil {
						slog.Debug("relay encode failed", "type", e.Type, "error", err)
						continue
					}
					sock.Relay.Forward(e.Type, payload)
				}
			},
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Warn("agent upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		go func() {
			_ = bridge.ServeConn(conn, r.RemoteAddr, cfg)
		}()
	}
}
