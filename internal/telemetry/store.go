// Package telemetry buffers bounded agent events for later retrieval.
// Nothing here persists: buffers are capped in-memory rings and a restart
// starts empty.
package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/devtools_bridge/internal/bound"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// Entry is one retained telemetry event. Data has already been through the
// bounding pipeline and is safe to hold and serialize.
type Entry struct {
	Type       string    `json:"type"`
	AgentID    string    `json:"agent_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Data       any       `json:"data"`
}

// Store holds per-category ring buffers of bounded events plus the current
// selected-element and page-location state the agent pushes.
type Store struct {
	limits   bound.Limits
	capacity int

	mu       sync.Mutex
	console  []Entry
	errors   []Entry
	network  []Entry
	selected *Entry
	pageURL  string
	pageAt   time.Time
}

// NewStore builds a store. capacity is the max entries retained per
// category; zero or negative keeps everything (tests only).
func NewStore(lim bound.Limits, capacity int) *Store {
	return &Store{limits: lim, capacity: capacity}
}

// Ingest bounds one telemetry frame and buffers it. Batch frames fan out
// into their inner events after the batch-level byte budget is applied.
// Returns the entries actually recorded, in order.
func (s *Store) Ingest(agentID string, msg wire.Message) []Entry {
	payload := bound.Process(msg.Data, s.limits)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Type == wire.TagTelemetryBatch {
		items, ok := payload.([]any)
		if !ok {
			slog.Warn("telemetry batch with non-array payload dropped", "agent_id", agentID)
			return nil
		}
		var recorded []Entry
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			innerType, _ := m["type"].(string)
			if e, ok := s.record(innerType, agentID, m["data"], now); ok {
				recorded = append(recorded, e)
			}
		}
		return recorded
	}

	if e, ok := s.record(msg.Type, agentID, payload, now); ok {
		return []Entry{e}
	}
	return nil
}

// record routes one bounded event into its buffer. Caller holds the lock.
func (s *Store) record(eventType, agentID string, data any, now time.Time) (Entry, bool) {
	e := Entry{Type: eventType, AgentID: agentID, ReceivedAt: now, Data: data}
	switch eventType {
	case wire.TagConsoleLog:
		s.console = appendCapped(s.console, e, s.capacity)
	case wire.TagConsoleError:
		s.errors = appendCapped(s.errors, e, s.capacity)
	case wire.TagNetworkRequest:
		s.network = appendCapped(s.network, e, s.capacity)
	case wire.TagSelectedElement:
		s.selected = &e
	case wire.TagPageNavigated:
		if m, ok := data.(map[string]any); ok {
			if url, ok := m["url"].(string); ok {
				s.pageURL = url
				s.pageAt = now
			}
		}
	default:
		slog.Debug("telemetry with unknown type dropped", "type", eventType, "agent_id", agentID)
		return Entry{}, false
	}
	return e, true
}

// ConsoleLogs returns the most recent console-log entries, oldest first.
func (s *Store) ConsoleLogs(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.console, limit)
}

// ConsoleErrors returns the most recent console-error entries, oldest first.
func (s *Store) ConsoleErrors(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.errors, limit)
}

// NetworkEvents returns the most recent network entries, oldest first.
func (s *Store) NetworkEvents(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.network, limit)
}

// SelectedElement returns the element the agent last reported as selected.
func (s *Store) SelectedElement() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Entry{}, false
	}
	return *s.selected, true
}

// PageURL returns the last page location the agent reported.
func (s *Store) PageURL() (string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageURL == "" {
		return "", time.Time{}, false
	}
	return s.pageURL, s.pageAt, true
}

// Counts reports retained entries per category.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		wire.TagConsoleLog:     len(s.console),
		wire.TagConsoleError:   len(s.errors),
		wire.TagNetworkRequest: len(s.network),
	}
}

// Wipe discards every buffered event and the selected-element state.
func (s *Store) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = nil
	s.errors = nil
	s.network = nil
	s.selected = nil
}

func appendCapped(buf []Entry, e Entry, capacity int) []Entry {
	buf = append(buf, e)
	if capacity > 0 && len(buf) > capacity {
		overflow := len(buf) - capacity
		buf = append(buf[:0:0], buf[overflow:]...)
	}
	return buf
}

func tail(buf []Entry, limit int) []Entry {
	start := 0
	if limit > 0 && len(buf) > limit {
		start = len(buf) - limit
	}
	out := make([]Entry, len(buf)-start)
	copy(out, buf[start:])
	return out
}
