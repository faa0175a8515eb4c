// Package agentsim runs a synthetic browser agent against a bridge server.
// It speaks the full agent contract: port-scan discovery, signature
// handshake, heartbeat replies, canned command replies and periodic
// synthetic telemetry. No page renders behind it; the point is exercising
// the broker end to end without a browser.
package agentsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

const handshakeReplyTimeout = 10 * time.Second

// tinyPNGBase64 is a 1x1 transparent PNG, enough for the snapshot pipeline
// to decode and archive.
const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// Options configures one simulated agent.
type Options struct {
	// ServerURL pins the bridge base URL, e.g. "http://127.0.0.1:8765".
	// Empty means discover by probing the candidate port range.
	ServerURL string
	Host      string
	FromPort  int
	ToPort    int

	// Version is advertised in the handshake. Empty uses the protocol
	// version this build speaks.
	Version string

	// TelemetryInterval is the gap between synthetic telemetry frames.
	// Zero disables emission.
	TelemetryInterval time.Duration
}

// Run connects one simulated agent and blocks until the connection dies or
// ctx is cancelled. A server-shutdown frame and a cancelled ctx are both
// clean exits.
func Run(ctx context.Context, opts Options) error {
	base := opts.ServerURL
	if base == "" {
		found, err := Discover(ctx, opts.Host, opts.FromPort, opts.ToPort)
		if err != nil {
			return err
		}
		base = found
	}
	if opts.Version == "" {
		opts.Version = wire.Version
	}

	a := &agent{
		wsURL:    "ws" + strings.TrimPrefix(strings.TrimRight(base, "/"), "http") + "/ws",
		version:  opts.Version,
		interval: opts.TelemetryInterval,
		done:     make(chan struct{}),
	}
	return a.run(ctx)
}

type agent struct {
	wsURL    string
	version  string
	interval time.Duration

	wmu  sync.Mutex
	conn net.Conn

	done     chan struct{}
	downOnce sync.Once
}

func (a *agent) run(ctx context.Context) error {
	slog.Info("agentsim dialing", "ws_url", a.wsURL)
	conn, _, _, err := ws.Dial(ctx, a.wsURL)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	a.conn = conn
	defer a.close()

	if err := a.handshake(); err != nil {
		return err
	}
	slog.Info("agentsim attached", "version", a.version)

	go func() {
		select {
		case <-ctx.Done():
			a.close()
		case <-a.done:
		}
	}()

	// A fresh page reports where it is before anything else happens.
	a.emit(wire.TagPageNavigated, map[string]any{"url": "https://example.test/app"})

	if a.interval > 0 {
		go a.telemetryLoop()
	}
	return a.readLoop()
}

// handshake sends the signature frame and verifies the broker's answer.
func (a *agent) handshake() error {
	if err := a.send(wire.Message{Type: wire.TagHandshake, Signature: wire.Signature, Version: a.version}); err != nil {
		return fmt.Errorf("handshake send: %w", err)
	}

	a.conn.SetReadDeadline(time.Now().Add(handshakeReplyTimeout))
	defer a.conn.SetReadDeadline(time.Time{})

	data, err := wsutil.ReadServerText(a.conn)
	if err != nil {
		return fmt.Errorf("handshake reply read: %w", err)
	}
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("handshake reply decode: %w", err)
	}
	if msg.Type != wire.TagHandshakeResponse {
		return fmt.Errorf("handshake reply has type %q", msg.Type)
	}
	if msg.Signature != wire.Signature {
		return fmt.Errorf("handshake reply signature mismatch")
	}
	return nil
}

func (a *agent) readLoop() error {
	for {
		data, err := wsutil.ReadServerText(a.conn)
		if err != nil {
			select {
			case <-a.done:
				return nil
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}

		var frame struct {
			Type          string `json:"type"`
			CorrelationID string `json:"correlationId"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("agentsim dropping malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case wire.TagHeartbeat:
			if err := a.send(wire.Message{Type: wire.TagHeartbeatResponse}); err != nil {
				return fmt.Errorf("heartbeat reply: %w", err)
			}
		case wire.TagServerShutdown:
			slog.Info("agentsim received server shutdown")
			return nil
		default:
			a.handleCommand(frame.Type, frame.CorrelationID, data)
		}
	}
}

// handleCommand answers one command with a canned reply. Unknown commands
// carrying a correlation id get an error reply so the caller fails fast
// instead of waiting out its budget.
func (a *agent) handleCommand(tag, cid string, raw []byte) {
	if cid == "" {
		slog.Debug("agentsim ignoring frame without correlation id", "type", tag)
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		fields = map[string]any{}
	}

	var reply map[string]any
	switch tag {
	case wire.TagTakeScreenshot:
		reply = map[string]any{
			"data":   tinyPNGBase64,
			"format": stringField(fields, "format", "png"),
		}
	case wire.TagClickElement:
		reply = map[string]any{"clicked": true}
		if sel := stringField(fields, "selector", ""); sel != "" {
			reply["selector"] = sel
		}
	case wire.TagReadStorage:
		kind := stringField(fields, "kind", "local")
		reply = map[string]any{"kind": kind, "entries": cannedStorage(kind)}
	case wire.TagNavigate:
		target := stringField(fields, "url", "")
		reply = map[string]any{"url": target, "loaded": true}
		defer a.emit(wire.TagPageNavigated, map[string]any{"url": target})
	default:
		slog.Debug("agentsim rejecting unsupported command", "type", tag)
		if err := a.send(wire.Message{Type: wire.ErrorTag(tag), CorrelationID: cid, Error: "unsupported command: " + tag}); err != nil {
			slog.Debug("agentsim error reply failed", "type", tag, "error", err)
		}
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		slog.Debug("agentsim reply encode failed", "type", tag, "error", err)
		return
	}
	if err := a.send(wire.Message{Type: wire.ResponseTag(tag), CorrelationID: cid, Data: data}); err != nil {
		slog.Debug("agentsim reply send failed", "type", tag, "error", err)
	}
}

// telemetryLoop emits a rotating set of synthetic events so every bridge
// buffer sees traffic.
func (a *agent) telemetryLoop() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			n++
			switch n % 5 {
			case 0:
				a.emit(wire.TagConsoleLog, map[string]any{"level": "log", "message": fmt.Sprintf("agentsim tick %d", n)})
			case 1:
				a.emit(wire.TagNetworkRequest, map[string]any{"method": "GET", "url": fmt.Sprintf("https://example.test/api/items?page=%d", n), "status": 200})
			case 2:
				a.emit(wire.TagConsoleError, map[string]any{"level": "error", "message": "simulated failure", "stack": "Error: simulated failure\n    at tick"})
			case 3:
				a.emit(wire.TagTelemetryBatch, []map[string]any{
					{"type": wire.TagConsoleLog, "data": map[string]any{"level": "log", "message": "batched line"}},
					{"type": wire.TagNetworkRequest, "data": map[string]any{"method": "POST", "url": "https://example.test/api/save", "status": 201}},
				})
			case 4:
				a.emit(wire.TagSelectedElement, map[string]any{"selector": "#main", "tag": "div", "text": "agentsim element pick"})
			}
		}
	}
}

// emit sends one telemetry frame. Send failures end the connection through
// the read loop, so they are only logged here.
func (a *agent) emit(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Debug("agentsim telemetry encode failed", "type", eventType, "error", err)
		return
	}
	if err := a.send(wire.Message{Type: eventType, Data: payload}); err != nil {
		slog.Debug("agentsim telemetry send failed", "type", eventType, "error", err)
	}
}

func (a *agent) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	a.wmu.Lock()
	defer a.wmu.Unlock()
	return wsutil.WriteClientText(a.conn, data)
}

func (a *agent) close() {
	a.downOnce.Do(func() {
		close(a.done)
		if err := a.conn.Close(); err != nil {
			slog.Debug("agentsim socket close failed", "error", err)
		}
	})
}

func stringField(fields map[string]any, key, fallback string) string {
	if s, ok := fields[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func cannedStorage(kind string) map[string]any {
	switch kind {
	case "cookies":
		return map[string]any{"sid": "sim-session", "theme": "dark"}
	case "session":
		return map[string]any{"tab": "overview"}
	default:
		return map[string]any{"feature_flags": "relay,screenshot"}
	}
}
