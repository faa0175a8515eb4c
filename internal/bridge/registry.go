package bridge

import (
	"sync"
	"time"
)

// State tracks a connection through its lifecycle. A connection is only
// visible to the rest of the broker while OPEN; CONNECTING covers the
// handshake window before registration and CLOSING/CLOSED the teardown.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AgentInfo describes one registered connection.
type AgentInfo struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	RemoteAddr    string    `json:"remote_addr,omitempty"`
	Version       string    `json:"version,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastContactAt time.Time `json:"last_contact_at"`
}

// Peer is what the registry needs from a live connection.
type Peer interface {
	ID() string
	State() State
	Send(v any) error
	Close() error
	Info() AgentInfo
}

// Registry tracks the set of live agent connections. It owns no sockets;
// transport code registers a connection once its handshake completes and
// unregisters it on teardown.
type Registry struct {
	mu    sync.Mutex
	order []Peer // registration order, oldest first
	byID  map[string]Peer

	onRegister   []func(info AgentInfo)
	onUnregister []func(id string)
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Peer)}
}

// OnRegister adds a callback invoked after each successful registration.
// Must be wired before connections start arriving.
func (r *Registry) OnRegister(fn func(info AgentInfo)) {
	r.mu.Lock()
	r.onRegister = append(r.onRegister, fn)
	r.mu.Unlock()
}

// OnUnregister adds a callback invoked after each removal.
func (r *Registry) OnUnregister(fn func(id string)) {
	r.mu.Lock()
	r.onUnregister = append(r.onUnregister, fn)
	r.mu.Unlock()
}

// Register adds a newly OPEN connection. Re-registering an ID already
// present is a no-op.
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	if _, ok := r.byID[p.ID()]; ok {
		r.mu.Unlock()
		return
	}
	r.byID[p.ID()] = p
	r.order = append(r.order, p)
	callbacks := make([]func(AgentInfo), len(r.onRegister))
	copy(callbacks, r.onRegister)
	r.mu.Unlock()

	info := p.Info()
	for _, fn := range callbacks {
		fn(info)
	}
}

// Unregister removes a connection. Callbacks fire exactly once per removal;
// unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	for i, p := range r.order {
		if p.ID() == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	callbacks := make([]func(string), len(r.onUnregister))
	copy(callbacks, r.onUnregister)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(id)
	}
}

// SelectOne returns the most recently registered OPEN connection. When an
// agent reconnects the fresh connection wins over any stale one still in
// the table, which keeps dispatch pointed at the peer the operator can see.
func (r *Registry) SelectOne() (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		if r.order[i].State() == StateOpen {
			return r.order[i], true
		}
	}
	return nil, false
}

// Broadcast sends v to every OPEN connection. A failed send unregisters that
// connection and delivery to the rest continues. Returns the delivered count.
func (r *Registry) Broadcast(v any) int {
	peers := r.snapshot()
	sent := 0
	for _, p := range peers {
		if p.State() != StateOpen {
			continue
		}
		if err := p.Send(v); err != nil {
			r.Unregister(p.ID())
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every registered connection. Used at shutdown after the
// shutdown signal has been broadcast.
func (r *Registry) CloseAll() {
	for _, p := range r.snapshot() {
		p.Close()
	}
}

// List returns connection details in registration order.
func (r *Registry) List() []AgentInfo {
	peers := r.snapshot()
	out := make([]AgentInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Info())
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) snapshot() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]Peer, len(r.order))
	copy(peers, r.order)
	return peers
}
