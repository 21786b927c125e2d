package hub

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this loses events; delivery is at-most-once and
// the authoritative state stays readable through GetTracker.
const subscriberBuffer = 16

// Publisher is the realtime push channel between the hub and connected
// clients. The transport is swappable; the in-memory implementation serves a
// single process, and tests substitute their own.
type Publisher interface {
	// Publish delivers the event to every current subscriber of the topic.
	Publish(topic string, event Event)

	// Subscribe registers a new subscriber on the topic. The returned cancel
	// function unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan Event, func())
}

// InMemoryPublisher is a process-local topic-based publisher.
type InMemoryPublisher struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewInMemoryPublisher creates an empty publisher.
func NewInMemoryPublisher(logger *slog.Logger) *InMemoryPublisher {
	return &InMemoryPublisher{
		topics: make(map[string]map[chan Event]struct{}),
		logger: logger.With("component", "in_memory_publisher"),
	}
}

// Publish delivers the event to every subscriber of the topic. Sends never
// block: a subscriber whose buffer is full misses the event.
func (p *InMemoryPublisher) Publish(topic string, event Event) {
	// Sends happen under the read lock so a concurrent unsubscribe cannot
	// close a channel mid-send. Sends are non-blocking, so the lock is never
	// held waiting on a slow subscriber.
	p.mu.RLock()
	defer p.mu.RUnlock()

	for ch := range p.topics[topic] {
		select {
		case ch <- event:
		default:
			p.logger.Debug("subscriber buffer full, dropping event",
				"topic", topic, "event_type", event.Type)
		}
	}
}

// Subscribe registers a subscriber on the topic.
func (p *InMemoryPublisher) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	p.mu.Lock()
	if p.topics[topic] == nil {
		p.topics[topic] = make(map[chan Event]struct{})
	}
	p.topics[topic][ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.topics[topic], ch)
			if len(p.topics[topic]) == 0 {
				delete(p.topics, topic)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

var _ Publisher = (*InMemoryPublisher)(nil)
