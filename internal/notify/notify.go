// Package notify pushes best-effort agent lifecycle events to an optional
// webhook. Delivery failures are logged and dropped; the bridge never blocks
// on the receiver.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	EventAgentAttached = "agent-attached"
	EventAgentDetached = "agent-detached"
	EventShutdown      = "bridge-shutdown"
)

const sendTimeout = 5 * time.Second

// Event is one lifecycle notification.
type Event struct {
	Event   string    `json:"event"`
	AgentID string    `json:"agent_id,omitempty"`
	Remote  string    `json:"remote_addr,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier posts events to a single webhook endpoint. A Notifier with an
// empty endpoint is valid and sends nothing.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{endpoint: endpoint, client: client}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// Send posts one event and waits for the response.
func (n *Notifier) Send(ctx context.Context, evt Event) error {
	if !n.Enabled() {
		return nil
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Go sends in the background with a bounded timeout, logging failures.
func (n *Notifier) Go(evt Event) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.Send(ctx, evt); err != nil {
			slog.Debug("notify webhook failed", "event", evt.Event, "error", err)
		}
	}()
}
