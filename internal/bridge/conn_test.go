package bridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

func mustFrame(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// clientHandshake performs the agent side of the opening exchange.
func clientHandshake(t *testing.T, client net.Conn, version string) wire.Message {
	t.Helper()
	if err := wsutil.WriteClientText(client, mustFrame(t, wire.Message{Type: wire.TagHandshake, Signature: wire.Signature, Version: version})); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("read handshake response: %v", err)
	}
	var resp wire.Message
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode handshake response: %v", err)
	}
	return resp
}

func TestServeConnHandshake(t *testing.T) {
	t.Run("valid_signature_registers_connection", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		errCh := make(chan error, 1)
		go func() {
			errCh <- ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: time.Minute})
		}()

		resp := clientHandshake(t, client, "0.9.1")
		if resp.Type != wire.TagHandshakeResponse {
			t.Fatalf("response type = %q; want %q", resp.Type, wire.TagHandshakeResponse)
		}
		if resp.Signature != wire.Signature {
			t.Fatalf("response signature = %q; want broker signature", resp.Signature)
		}

		waitFor(t, "registration", func() bool { return reg.Len() == 1 })
		infos := reg.List()
		if infos[0].Version != "0.9.1" {
			t.Fatalf("agent version = %q; want 0.9.1", infos[0].Version)
		}
		if infos[0].State != "open" {
			t.Fatalf("state = %q; want open", infos[0].State)
		}

		client.Close()
		waitFor(t, "unregistration", func() bool { return reg.Len() == 0 })
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("ServeConn did not return after peer close")
		}
	})

	t.Run("wrong_signature_is_never_registered", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		errCh := make(chan error, 1)
		go func() {
			errCh <- ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: time.Minute})
		}()

		if err := wsutil.WriteClientText(client, mustFrame(t, wire.Message{Type: wire.TagHandshake, Signature: "intruder", Version: "1.0"})); err != nil {
			t.Fatalf("write handshake: %v", err)
		}

		select {
		case err := <-errCh:
			if err == nil {
				t.Fatalf("ServeConn accepted a bad signature")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("ServeConn did not reject bad signature")
		}
		if reg.Len() != 0 {
			t.Fatalf("Len() = %d; want 0", reg.Len())
		}
	})

	t.Run("non_handshake_first_frame_rejected", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		errCh := make(chan error, 1)
		go func() {
			errCh <- ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: time.Minute})
		}()

		if err := wsutil.WriteClientText(client, mustFrame(t, wire.Message{Type: wire.TagConsoleLog, Data: json.RawMessage(`{}`)})); err != nil {
			t.Fatalf("write frame: %v", err)
		}

		select {
		case err := <-errCh:
			if err == nil {
				t.Fatalf("ServeConn accepted a non-handshake first frame")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("ServeConn did not reject first frame")
		}
		if reg.Len() != 0 {
			t.Fatalf("Len() = %d; want 0", reg.Len())
		}
	})

	t.Run("silent_peer_times_out", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		errCh := make(chan error, 1)
		go func() {
			errCh <- ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: time.Minute, HandshakeTimeout: 50 * time.Millisecond})
		}()

		select {
		case err := <-errCh:
			if err == nil {
				t.Fatalf("ServeConn returned nil for a silent peer")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("handshake deadline never fired")
		}
	})
}

func TestServeConnRouting(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	reg := NewRegistry()
	replies := make(chan wire.Message, 4)
	telemetry := make(chan wire.Message, 4)
	routes := map[wire.Kind]Handler{
		wire.KindReply:     func(_ *Conn, m wire.Message) { replies <- m },
		wire.KindTelemetry: func(_ *Conn, m wire.Message) { telemetry <- m },
	}
	go ServeConn(server, "pipe", ConnConfig{Registry: reg, Routes: routes, HeartbeatInterval: time.Minute})

	clientHandshake(t, client, "1.0")

	if err := wsutil.WriteClientText(client, mustFrame(t, wire.Message{Type: "navigate-response", CorrelationID: "r1", Data: json.RawMessage(`{}`)})); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	select {
	case m := <-replies:
		if m.CorrelationID != "r1" {
			t.Fatalf("reply correlation id = %q; want r1", m.CorrelationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reply frame was not routed")
	}

	// A malformed frame is dropped without killing the connection.
	if err := wsutil.WriteClientText(client, []byte("{{{nonsense")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}

	if err := wsutil.WriteClientText(client, mustFrame(t, wire.Message{Type: wire.TagConsoleLog, Data: json.RawMessage(`{"level":"warn"}`)})); err != nil {
		t.Fatalf("write telemetry: %v", err)
	}
	select {
	case m := <-telemetry:
		if m.Type != wire.TagConsoleLog {
			t.Fatalf("telemetry type = %q; want console-log", m.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("telemetry frame was not routed")
	}

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d; want connection still registered", reg.Len())
	}
}

func TestServeConnHeartbeat(t *testing.T) {
	t.Run("silent_agent_dropped_after_liveness_window", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		go ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: 30 * time.Millisecond})

		clientHandshake(t, client, "1.0")
		waitFor(t, "registration", func() bool { return reg.Len() == 1 })

		// Drain broker frames but never answer them.
		beats := make(chan struct{}, 16)
		go func() {
			for {
				data, err := wsutil.ReadServerText(client)
				if err != nil {
					return
				}
				var m wire.Message
				if json.Unmarshal(data, &m) == nil && m.Type == wire.TagHeartbeat {
					beats <- struct{}{}
				}
			}
		}()

		select {
		case <-beats:
		case <-time.After(2 * time.Second):
			t.Fatalf("no heartbeat emitted")
		}
		waitFor(t, "silent agent eviction", func() bool { return reg.Len() == 0 })
	})

	t.Run("responsive_agent_stays_registered", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		reg := NewRegistry()
		go ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: 30 * time.Millisecond})

		clientHandshake(t, client, "1.0")
		waitFor(t, "registration", func() bool { return reg.Len() == 1 })

		ack := mustFrame(t, wire.Message{Type: wire.TagHeartbeatResponse})
		stop := make(chan struct{})
		go func() {
			for {
				data, err := wsutil.ReadServerText(client)
				if err != nil {
					return
				}
				var m wire.Message
				if json.Unmarshal(data, &m) == nil && m.Type == wire.TagHeartbeat {
					select {
					case <-stop:
						return
					default:
					}
					wsutil.WriteClientText(client, ack)
				}
			}
		}()

		time.Sleep(200 * time.Millisecond)
		if reg.Len() != 1 {
			t.Fatalf("Len() = %d; want responsive agent still registered", reg.Len())
		}
		close(stop)
	})
}

func TestConnBrokerSideClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	reg := NewRegistry()
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeConn(server, "pipe", ConnConfig{Registry: reg, HeartbeatInterval: time.Minute})
	}()

	clientHandshake(t, client, "1.0")
	waitFor(t, "registration", func() bool { return reg.Len() == 1 })

	p, ok := reg.SelectOne()
	if !ok {
		t.Fatalf("SelectOne() returned none")
	}
	p.Close()

	waitFor(t, "unregistration", func() bool { return reg.Len() == 0 })
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ServeConn() = %v; want nil on orderly close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ServeConn did not return after Close")
	}
}

func TestDispatchRoundTripOverSocket(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	reg := NewRegistry()
	corr := NewCorrelator(reg)
	routes := map[wire.Kind]Handler{
		wire.KindReply: func(_ *Conn, m wire.Message) { corr.HandleReply(m) },
	}
	go ServeConn(server, "pipe", ConnConfig{Registry: reg, Routes: routes, HeartbeatInterval: time.Minute})

	agentErr := make(chan error, 1)
	go func() {
		hs, err := json.Marshal(wire.Message{Type: wire.TagHandshake, Signature: wire.Signature, Version: "1.0"})
		if err != nil {
			agentErr <- err
			return
		}
		if err := wsutil.WriteClientText(client, hs); err != nil {
			agentErr <- err
			return
		}
		if _, err := wsutil.ReadServerText(client); err != nil {
			agentErr <- err
			return
		}
		for {
			data, err := wsutil.ReadServerText(client)
			if err != nil {
				agentErr <- err
				return
			}
			var cmd struct {
				Type          string `json:"type"`
				CorrelationID string `json:"correlationId"`
				Key           string `json:"key"`
			}
			if err := json.Unmarshal(data, &cmd); err != nil {
				agentErr <- err
				return
			}
			if cmd.Type == wire.TagHeartbeat {
				continue
			}
			reply, err := json.Marshal(wire.Message{
				Type:          cmd.Type + "-response",
				CorrelationID: cmd.CorrelationID,
				Data:          json.RawMessage(`{"key":"` + cmd.Key + `","value":"abc123"}`),
			})
			if err != nil {
				agentErr <- err
				return
			}
			if err := wsutil.WriteClientText(client, reply); err != nil {
				agentErr <- err
				return
			}
		}
	}()

	waitFor(t, "registration", func() bool { return reg.Len() == 1 })

	data, err := corr.Dispatch(context.Background(), wire.Command{
		Type:   wire.TagReadStorage,
		Fields: map[string]any{"key": "session"},
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("Dispatch() error = %v; want nil", err)
	}

	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if got["key"] != "session" || got["value"] != "abc123" {
		t.Fatalf("reply = %v; want key/value echo", got)
	}

	select {
	case err := <-agentErr:
		t.Fatalf("agent loop failed: %v", err)
	default:
	}
}
