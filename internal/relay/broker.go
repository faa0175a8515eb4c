package relay

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event is a single telemetry event fanned out to SSE clients.
type Event struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch    chan Event
	wants map[string]struct{} // nil means every channel
}

// Broker fans out telemetry events to subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]*subscriber),
	}
}

// Subscribe registers a new client interested in the given channels; with no
// channels the client receives everything. Returns the subscriber ID and the
// channel to receive events on. The channel is buffered; slow consumers have
// events dropped rather than stalling ingestion.
func (b *Broker) Subscribe(channels ...string) (int64, <-chan Event) {
	sub := &subscriber{ch: make(chan Event, subscriberBufSize)}
	if len(channels) > 0 {
		sub.wants = make(map[string]struct{}, len(channels))
		for _, name := range channels {
			sub.wants[name] = struct{}{}
		}
	}
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to every subscriber whose filter matches it.
// Non-blocking: events for full subscriber buffers are counted and dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.wants != nil {
			if _, ok := sub.wants[evt.Channel]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events were discarded because a subscriber
// buffer was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// Publisher routes telemetry events onto their configured channels.
type Publisher struct {
	broker *Broker
	cfg    *Config
}

// NewPublisher binds a broker to a channel configuration.
func NewPublisher(b *Broker, cfg *Config) *Publisher {
	return &Publisher{broker: b, cfg: cfg}
}

// Forward publishes one telemetry event to every channel configured to carry
// its type. Events with no matching channel are discarded.
func (p *Publisher) Forward(eventType string, payload []byte) {
	for _, name := range p.cfg.ChannelsFor(eventType) {
		p.broker.Publish(Event{Channel: name, Payload: string(payload)})
	}
}

// Broker exposes the underlying broker for handler wiring.
func (p *Publisher) Broker() *Broker { return p.broker }

// Channels lists the configured channel names.
func (p *Publisher) Channels() []string { return p.cfg.ChannelNames() }
