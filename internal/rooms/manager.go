// Package rooms tracks which chat rooms the live channel has joined.
package rooms

import (
	"context"
	"sync"

	"github.com/courseloop/chatsync/internal/bus"
	"go.uber.org/zap"
)

// Emitter sends named events on the live channel.
type Emitter interface {
	Emit(event string, payload any) error
}

// Manager owns the set of joined room memberships. Join is idempotent;
// Leave is issued on room deactivation so memberships do not accumulate
// for the lifetime of the session. After a channel reconnect the manager
// re-joins every tracked room, since the server side forgot them.
type Manager struct {
	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.Mutex
	joined map[string]struct{}

	cancel context.CancelFunc
}

// NewManager creates a room subscription manager.
func NewManager(emitter Emitter, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		emitter: emitter,
		bus:     b,
		logger:  logger,
		joined:  make(map[string]struct{}),
	}
}

// Start subscribes to channel lifecycle events so joins survive reconnects.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.bus.Subscribe(bus.KindChannelConnected, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				m.rejoin()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the manager.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Join subscribes the channel to a room. Calling it again for a room
// already joined is a no-op, so broadcasts are never double-delivered by
// a repeated join. Must run before the history fetch so no broadcast is
// missed during the loading window.
func (m *Manager) Join(roomID string) error {
	m.mu.Lock()
	if _, ok := m.joined[roomID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.emitter.Emit("joinRoom", roomID); err != nil {
		return err
	}

	m.mu.Lock()
	m.joined[roomID] = struct{}{}
	m.mu.Unlock()

	m.publish(bus.KindRoomJoined, roomID)
	m.logger.Debug("room joined", zap.String("room_id", roomID))
	return nil
}

// Leave unsubscribes the channel from a room.
func (m *Manager) Leave(roomID string) error {
	m.mu.Lock()
	if _, ok := m.joined[roomID]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.joined, roomID)
	m.mu.Unlock()

	if err := m.emitter.Emit("leaveRoom", roomID); err != nil {
		return err
	}
	m.publish(bus.KindRoomLeft, roomID)
	m.logger.Debug("room left", zap.String("room_id", roomID))
	return nil
}

// Joined reports whether the channel is subscribed to a room.
func (m *Manager) Joined(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.joined[roomID]
	return ok
}

func (m *Manager) rejoin() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.joined))
	for id := range m.joined {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.emitter.Emit("joinRoom", id); err != nil {
			m.logger.Warn("rejoin failed", zap.String("room_id", id), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		m.logger.Info("rooms rejoined after reconnect", zap.Int("count", len(ids)))
	}
}

func (m *Manager) publish(kind string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(kind, payload)
}
