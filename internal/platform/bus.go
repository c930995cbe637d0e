package platform

import (
	"sync"
	"time"
)

const (
	subscriberBuffer = 64
	recentCapacity   = 256
)

// Bus is the in-process event channel between the engines and their
// collaborators. Publishing never blocks: a subscriber that cannot keep up
// loses events rather than stalling an engine. A bounded ring of recent
// events backs the polling API surface.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	recent []Event
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Publish delivers an event to all subscribers and records it in the recent
// ring. Stamps At when the publisher left it zero.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, evt)
	if len(b.recent) > recentCapacity {
		b.recent = b.recent[len(b.recent)-recentCapacity:]
	}

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// subscriber is behind; drop
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Recent returns up to n of the most recently published events, oldest first
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}
