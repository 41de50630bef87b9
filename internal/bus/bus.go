package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// It decouples the change-feed client from the sync engine and the engine
// from API watchers: publishers never know who is listening.
//
// Delivery is non-blocking. A subscriber that stops draining its channel
// loses events rather than stalling the publisher; consumers that care
// (the engine) size their buffers accordingly.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	nextID uint64
}

type subscriber struct {
	id     uint64
	prefix string
	ch     chan Event
}

// New creates an event bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Subscriber is full; drop rather than block the publisher.
		}
	}
}

// Subscribe registers interest in event kinds starting with prefix (empty
// matches everything). The returned function removes the subscription; the
// channel is never closed, so a drained reader simply stops receiving.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, &subscriber{id: id, prefix: prefix, ch: ch})
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
