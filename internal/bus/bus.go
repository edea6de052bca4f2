// Package bus is the in-process event spine of the engine. Every state
// change a chat surface cares about crosses it as an Event; the engine
// emits, consumers subscribe by namespace prefix. Producers never block:
// a subscriber that falls behind loses events rather than stalling the
// send or receive paths.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus fans events out to prefix-matched subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Emit publishes an event of the given kind, stamped with the current
// time, to every subscriber whose prefix matches the kind. A subscriber
// with a full channel misses the event.
func (b *Bus) Emit(kind string, payload any) {
	evt := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in every kind starting with prefix (the
// empty prefix matches everything). bufSize is the subscriber's channel
// buffer. The returned function cancels the subscription; the channel is
// not closed, so draining selects stay valid.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
