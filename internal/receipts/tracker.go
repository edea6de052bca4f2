// Package receipts owns unread counters and read receipts. All unread
// mutation funnels through the tracker so the room-open path and the
// broadcast path cannot desynchronize.
package receipts

import (
	"context"
	"sync"

	"github.com/courseloop/chatsync/internal/bus"
	"go.uber.org/zap"
)

// ReadMarker issues the backend mark-read call.
type ReadMarker interface {
	MarkRead(ctx context.Context, roomID string) error
}

// UnreadChange is the payload of room.unread_changed events.
type UnreadChange struct {
	RoomID string
	Count  int
}

// Tracker maintains per-room unread counters for the session.
type Tracker struct {
	marker ReadMarker
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	unread map[string]int
}

// NewTracker creates a tracker backed by the given read marker.
func NewTracker(marker ReadMarker, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		marker: marker,
		bus:    b,
		logger: logger,
		unread: make(map[string]int),
	}
}

// MarkRead zeroes the room's unread counter locally, then issues the
// backend call. The local zero happens first: read marking must not
// block message rendering and is not transactional with history loading.
func (t *Tracker) MarkRead(ctx context.Context, roomID string) error {
	t.mu.Lock()
	t.unread[roomID] = 0
	t.mu.Unlock()
	t.publish(bus.KindRoomRead, UnreadChange{RoomID: roomID, Count: 0})

	if err := t.marker.MarkRead(ctx, roomID); err != nil {
		t.logger.Warn("mark read failed", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	return nil
}

// IncrementUnread bumps a room's unread counter and returns the new value.
func (t *Tracker) IncrementUnread(roomID string) int {
	t.mu.Lock()
	t.unread[roomID]++
	n := t.unread[roomID]
	t.mu.Unlock()

	t.publish(bus.KindRoomUnreadChanged, UnreadChange{RoomID: roomID, Count: n})
	return n
}

// Unread returns a room's current unread counter.
func (t *Tracker) Unread(roomID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread[roomID]
}

func (t *Tracker) publish(kind string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Emit(kind, payload)
}
