package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe bus with kind-prefix filtering.
// Delivery is non-blocking: a subscriber that cannot keep up loses events
// rather than stalling publishers. Components that need a complete picture
// re-read the store instead of relying on the bus as a log.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// A zero At is filled with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.closed || !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Slow subscriber: drop.
		}
	}
}

// Subscribe registers interest in events whose Kind starts with prefix.
// Returns the receive channel and an unsubscribe function. The channel is
// never closed; callers select on it together with their context.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	s := &subscriber{prefix: prefix, ch: make(chan Event, buf)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
}
