package main

import (
	"fmt"
	"sync"

	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/receipts"
)

// tailer prints engine events to stdout. It is the whole presentation
// layer of the command: rendering state lives in the engine, not here.
type tailer struct {
	bus *bus.Bus

	mu     sync.Mutex
	unsubs []func()
	done   chan struct{}
}

func newTailer(b *bus.Bus) *tailer {
	return &tailer{bus: b, done: make(chan struct{})}
}

func (t *tailer) Start() {
	t.watch("message.", func(ev bus.Event) {
		m, ok := ev.Payload.(chat.Message)
		if !ok {
			return
		}
		switch ev.Kind {
		case bus.KindMessageAppended, bus.KindMessageConfirmed:
			label := m.Sender.Name
			if label == "" {
				label = m.Sender.ID
			}
			fmt.Printf("[%s] %s: %s\n", m.SentAt.Format("15:04"), label, m.Preview())
		case bus.KindMessageRemoved:
			fmt.Printf("  (message withdrawn)\n")
		}
	})
	t.watch(bus.KindRoomUnreadChanged, func(ev bus.Event) {
		if c, ok := ev.Payload.(receipts.UnreadChange); ok && c.Count > 0 {
			fmt.Printf("  (%d unread in %s)\n", c.Count, c.RoomID)
		}
	})
	t.watch(bus.KindChannelStatusChanged, func(ev bus.Event) {
		fmt.Printf("  (channel: %v)\n", ev.Payload)
	})
	t.watch(bus.KindNotice, func(ev bus.Event) {
		if n, ok := ev.Payload.(bus.Notice); ok {
			fmt.Printf("  (error from %s: %s)\n", n.Source, n.Message)
		}
	})
}

func (t *tailer) watch(namespace string, fn func(bus.Event)) {
	ch, unsub := t.bus.Subscribe(namespace, 64)
	t.mu.Lock()
	t.unsubs = append(t.unsubs, unsub)
	t.mu.Unlock()
	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fn(ev)
			case <-t.done:
				return
			}
		}
	}()
}

func (t *tailer) Stop() {
	close(t.done)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.unsubs {
		u()
	}
}
