package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// Correlator owns the pending-request table. Each dispatched command gets a
// correlation id and a buffered settlement channel; whichever event removes
// the table entry first (matching reply, timeout, connection loss) settles
// the request, and every later attempt finds the entry gone and becomes a
// no-op. Removal under the mutex is the exactly-once guard.
type Correlator struct {
	reg *Registry

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

type pendingRequest struct {
	connID string
	ch     chan outcome
}

type outcome struct {
	data json.RawMessage
	err  error
}

// NewCorrelator builds a correlator and subscribes it to registry removals
// so requests addressed to a dead connection settle immediately.
func NewCorrelator(reg *Registry) *Correlator {
	c := &Correlator{reg: reg, pending: make(map[string]*pendingRequest)}
	reg.OnUnregister(c.failConn)
	return c
}

// Dispatch sends cmd to one live agent and waits for the correlated reply.
// With no OPEN connection it fails synchronously without creating a table
// entry. The timeout is the caller's whole budget; no retries happen here.
func (c *Correlator) Dispatch(ctx context.Context, cmd wire.Command, timeout time.Duration) (json.RawMessage, error) {
	peer, ok := c.reg.SelectOne()
	if !ok {
		return nil, newError(CodeNoConnection, "no agent connection open", nil)
	}

	id := uuid.NewString()
	cmd.CorrelationID = id
	ch := make(chan outcome, 1)

	c.mu.Lock()
	c.pending[id] = &pendingRequest{connID: peer.ID(), ch: ch}
	c.mu.Unlock()

	if err := peer.Send(cmd); err != nil {
		c.remove(id)
		return nil, newError(CodeConnectionLost, "send to agent failed", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.data, out.err
	case <-timer.C:
		if c.remove(id) {
			return nil, newError(CodeTimeout, fmt.Sprintf("no reply from agent within %s", timeout), nil)
		}
		// A settlement won the race against the timer; the outcome is
		// already buffered.
		out := <-ch
		return out.data, out.err
	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

// HandleReply settles the pending request matching an inbound reply frame.
// Replies without a correlation id, or whose id is unknown or already
// settled, are logged and dropped.
func (c *Correlator) HandleReply(msg wire.Message) {
	if msg.CorrelationID == "" {
		slog.Warn("reply frame without correlation id dropped", "type", msg.Type, "code", CodeMalformedReply)
		return
	}

	c.mu.Lock()
	p, ok := c.pending[msg.CorrelationID]
	if ok {
		delete(c.pending, msg.CorrelationID)
		if wire.IsErrorReply(msg.Type) {
			errMsg := msg.Error
			if errMsg == "" {
				errMsg = "agent reported failure"
			}
			p.ch <- outcome{err: newError(CodeAgentError, errMsg, nil)}
		} else {
			p.ch <- outcome{data: msg.Data}
		}
	}
	c.mu.Unlock()

	if !ok {
		slog.Debug("orphan reply dropped", "correlation_id", msg.CorrelationID, "type", msg.Type)
	}
}

// failConn settles every pending request addressed to a removed connection.
func (c *Correlator) failConn(connID string) {
	c.mu.Lock()
	for id, p := range c.pending {
		if p.connID != connID {
			continue
		}
		delete(c.pending, id)
		p.ch <- outcome{err: newError(CodeConnectionLost, "agent connection closed mid-flight", nil)}
	}
	c.mu.Unlock()
}

// remove deletes a table entry, reporting whether it was still present.
func (c *Correlator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// PendingCount returns the number of unsettled requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
