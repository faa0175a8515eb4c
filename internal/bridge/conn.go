package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// A connection that sends nothing for this many heartbeat intervals is
// treated as dead and dropped.
const livenessMultiplier = 3

const defaultHandshakeTimeout = 10 * time.Second

// Handler consumes one classified inbound frame.
type Handler func(c *Conn, msg wire.Message)

// ConnConfig wires an accepted socket into the broker. Routes maps frame
// kinds to their consumers; kinds without an entry are dropped after the
// liveness bookkeeping has run.
type ConnConfig struct {
	Registry          *Registry
	Routes            map[wire.Kind]Handler
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
}

// Conn owns one physical agent connection: handshake, reads, writes,
// heartbeats, and teardown. Reconnecting agents get a brand-new Conn with a
// new id; nothing here ever dials out.
type Conn struct {
	id      string
	sock    net.Conn
	remote  string
	version string
	cfg     ConnConfig

	connectedAt time.Time
	state       atomic.Int32
	lastContact atomic.Int64

	wmu      sync.Mutex
	downOnce sync.Once
	done     chan struct{}
}

// ServeConn runs the full lifecycle of one accepted socket and blocks until
// the connection dies. The socket is closed on return. A peer that fails the
// signature check is never registered.
func ServeConn(sock net.Conn, remote string, cfg ConnConfig) error {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	c := &Conn{
		id:          uuid.NewString(),
		sock:        sock,
		remote:      remote,
		cfg:         cfg,
		connectedAt: time.Now().UTC(),
		done:        make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	c.touch()

	if err := c.handshake(); err != nil {
		slog.Warn("agent handshake rejected", "conn_id", c.id, "remote", c.remote, "error", err)
		c.teardown()
		return err
	}

	c.state.Store(int32(StateOpen))
	cfg.Registry.Register(c)
	slog.Info("agent connected", "conn_id", c.id, "remote", c.remote, "agent_version", c.version)

	go c.heartbeatLoop()
	err := c.readLoop()
	c.teardown()
	slog.Info("agent disconnected", "conn_id", c.id, "remote", c.remote, "error", err)
	return err
}

// handshake requires the first frame to carry the shared signature token and
// answers with the broker's own identity.
func (c *Conn) handshake() error {
	c.sock.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer c.sock.SetReadDeadline(time.Time{})

	data, err := wsutil.ReadClientText(c.sock)
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("handshake decode: %w", err)
	}
	if msg.Type != wire.TagHandshake {
		return fmt.Errorf("handshake: first frame has type %q", msg.Type)
	}
	if msg.Signature != wire.Signature {
		return fmt.Errorf("handshake: signature mismatch")
	}
	c.version = msg.Version

	return c.Send(wire.Message{Type: wire.TagHandshakeResponse, Signature: wire.Signature, Version: wire.Version})
}

func (c *Conn) readLoop() error {
	for {
		data, err := wsutil.ReadClientText(c.sock)
		if err != nil {
			if s := c.State(); s == StateClosing || s == StateClosed {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		c.touch()

		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("dropping malformed frame", "conn_id", c.id, "code", CodeMalformedReply, "error", err)
			continue
		}

		kind := wire.Classify(msg.Type)
		if h, ok := c.cfg.Routes[kind]; ok {
			h(c, msg)
			continue
		}
		if kind != wire.KindHeartbeatAck {
			slog.Debug("unrouted frame dropped", "conn_id", c.id, "type", msg.Type, "kind", kind.String())
		}
	}
}

func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.sinceContact() > livenessMultiplier*c.cfg.HeartbeatInterval {
				slog.Warn("agent silent past liveness window, dropping", "conn_id", c.id, "silent_for", c.sinceContact().String())
				c.teardown()
				return
			}
			if c.Send(wire.Control(wire.TagHeartbeat)) != nil {
				return
			}
		}
	}
}

// Send marshals and writes one frame. A failed write tears the connection
// down and returns the error to the caller; there are no transport-level
// retries.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.wmu.Lock()
	err = wsutil.WriteServerText(c.sock, data)
	c.wmu.Unlock()
	if err != nil {
		c.teardown()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close begins an orderly broker-side teardown. The read loop observes the
// closed socket and finishes the job.
func (c *Conn) Close() error {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	return c.sock.Close()
}

func (c *Conn) teardown() {
	c.downOnce.Do(func() {
		close(c.done)
		c.state.Store(int32(StateClosed))
		c.sock.Close()
		c.cfg.Registry.Unregister(c.id)
	})
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() State { return State(c.state.Load()) }

// Version reports the protocol version the agent sent in its handshake.
func (c *Conn) Version() string { return c.version }

func (c *Conn) Info() AgentInfo {
	return AgentInfo{
		ID:            c.id,
		State:         c.State().String(),
		RemoteAddr:    c.remote,
		Version:       c.version,
		ConnectedAt:   c.connectedAt,
		LastContactAt: time.Unix(0, c.lastContact.Load()).UTC(),
	}
}

func (c *Conn) touch() { c.lastContact.Store(time.Now().UnixNano()) }

func (c *Conn) sinceContact() time.Duration {
	return time.Since(time.Unix(0, c.lastContact.Load()))
}
