package serve

import (
	"sync"
)

const (
	maxSubscribers   = 50
	subscriberBuffer = 64
	// historySize is how many past events a new subscriber is replayed.
	historySize = 32
)

// EventBroker fans out launch events to SSE subscribers and remembers the
// most recent ones for late subscribers.
type EventBroker struct {
	subscribers map[chan BrokerEvent]struct{}
	history     []BrokerEvent
	closed      bool
	mu          sync.RWMutex
}

// NewEventBroker creates a new broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		subscribers: make(map[chan BrokerEvent]struct{}),
	}
}

// Subscribe returns a channel that receives events, starting with the
// retained history. It returns nil when the broker is full or closed.
// The caller must call Unsubscribe when done.
func (b *EventBroker) Subscribe() chan BrokerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.subscribers) >= maxSubscribers {
		return nil
	}

	ch := make(chan BrokerEvent, subscriberBuffer+historySize)
	for _, e := range b.history {
		ch <- e
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBroker) Unsubscribe(ch chan BrokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes all subscriber channels, causing SSE handlers to exit.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// Publish records event and sends it to all subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for that subscriber.
func (b *EventBroker) Publish(event BrokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if len(b.history) == historySize {
		copy(b.history, b.history[1:])
		b.history = b.history[:historySize-1]
	}
	b.history = append(b.history, event)

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow, drop event
		}
	}
}

// History returns a copy of the retained events, oldest first.
func (b *EventBroker) History() []BrokerEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]BrokerEvent, len(b.history))
	copy(out, b.history)
	return out
}
