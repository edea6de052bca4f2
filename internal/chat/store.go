package chat

import (
	"fmt"
	"sync"

	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/metrics"
	"go.uber.org/zap"
)

// Store holds the ordered message list for the active room and performs
// the reconciliation between locally-optimistic sends and server-confirmed
// state. The list is append-only in arrival order; it is not re-sorted by
// sentAt. All mutations go through the room guard: completion handlers of
// in-flight calls targeting a stale room are dropped here, never rendered.
type Store struct {
	mu     sync.Mutex
	roomID string
	msgs   []Message
	dedup  *Dedup
	bus    *bus.Bus
	logger *zap.Logger
}

// NewStore creates an empty store bound to no room.
func NewStore(b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dedup:  NewDedup(),
		bus:    b,
		logger: logger,
	}
}

// ResetForRoom clears the visible list and the dedup registry and binds
// the store to the given room. Called whenever the active room changes.
func (s *Store) ResetForRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.msgs = nil
	s.dedup.Reset(roomID)
}

// RoomID returns the currently active room, or empty.
func (s *Store) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Messages returns a snapshot of the visible list in arrival order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the visible list length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// LoadHistory admits fetched history into the visible list. Ids already
// registered are skipped, so a repeated load for the same room adds no
// duplicate entries. Returns the number of admitted messages. A load for
// a room that is no longer active is dropped whole.
func (s *Store) LoadHistory(roomID string, history []Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID != s.roomID {
		s.logger.Debug("dropping stale history load",
			zap.String("room_id", roomID), zap.String("active_room", s.roomID))
		return 0
	}

	admitted := 0
	for _, m := range history {
		if !m.Valid() {
			s.logger.Warn("skipping malformed history entry", zap.String("msg_id", m.ID))
			continue
		}
		if !s.dedup.Register(m.ID) {
			continue
		}
		m.Status = StatusConfirmed
		s.msgs = append(s.msgs, m)
		admitted++
	}

	if admitted > 0 {
		s.publish(bus.KindHistoryLoaded, map[string]any{
			"room_id": roomID,
			"count":   admitted,
		})
	}
	return admitted
}

// InsertPending appends an optimistic echo of the user's own message.
// The entry carries a client-local id and is not registered in the dedup
// registry; temporary ids never arrive over the broadcast path.
func (s *Store) InsertPending(m Message) error {
	if m.Status != StatusPending && m.Status != StatusUploading {
		return fmt.Errorf("optimistic insert with status %s", m.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.RoomID != s.roomID {
		return ErrRoomMismatch
	}
	s.msgs = append(s.msgs, m)
	s.publish(bus.KindMessageAppended, m)
	return nil
}

// SetStatus advances the lifecycle of a visible message.
func (s *Store) SetStatus(id string, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return ErrUnknownMessage
	}
	if err := Advance(s.msgs[i].Status, to); err != nil {
		return err
	}
	s.msgs[i].Status = to
	s.publish(bus.KindMessageUpdated, s.msgs[i])
	return nil
}

// Confirm replaces the temporary entry with the server-confirmed message
// and registers the confirmed id in the dedup registry as one atomic
// step. If the broadcast path delivered the same id first, the temporary
// entry is removed and the already-rendered entry stands. A confirmation
// arriving after the room changed is dropped.
func (s *Store) Confirm(tempID string, confirmed Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confirmed.RoomID != s.roomID {
		s.logger.Debug("dropping confirmation for inactive room",
			zap.String("room_id", confirmed.RoomID), zap.String("active_room", s.roomID))
		return ErrRoomMismatch
	}

	s.removeLocked(tempID)

	if !s.dedup.Register(confirmed.ID) {
		// Broadcast beat the persist response; the message is already visible.
		s.logger.Debug("confirmation collapsed into broadcast entry",
			zap.String("msg_id", confirmed.ID))
		return nil
	}

	confirmed.Status = StatusConfirmed
	s.msgs = append(s.msgs, confirmed)
	s.publish(bus.KindMessageConfirmed, confirmed)
	return nil
}

// Rollback removes a temporary entry after a failed upload or persist,
// restoring the pre-send visible list. Reports whether the entry existed.
func (s *Store) Rollback(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(tempID)
}

// AdmitBroadcast processes one inbound channel message. Structurally
// invalid payloads, messages for inactive rooms and already-rendered ids
// are dropped with a diagnostic log; everything else is appended.
func (s *Store) AdmitBroadcast(m Message) error {
	if !m.Valid() {
		metrics.MalformedDropped.Inc()
		s.logger.Warn("dropping malformed broadcast",
			zap.String("msg_id", m.ID), zap.String("room_id", m.RoomID))
		return ErrMalformedMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.RoomID != s.roomID {
		metrics.CrossRoomDropped.Inc()
		s.logger.Debug("dropping broadcast for inactive room",
			zap.String("room_id", m.RoomID), zap.String("active_room", s.roomID))
		return ErrRoomMismatch
	}
	if !s.dedup.Register(m.ID) {
		metrics.DuplicatesDropped.Inc()
		s.logger.Debug("dropping duplicate broadcast", zap.String("msg_id", m.ID))
		return ErrDuplicateMessage
	}

	m.Status = StatusConfirmed
	s.msgs = append(s.msgs, m)
	s.publish(bus.KindMessageAppended, m)
	return nil
}

// RefreshDisplayURL replaces a message's display reference in place
// without altering its id, content or position. Used when a time-limited
// read URL expires and is re-issued from the durable reference.
func (s *Store) RefreshDisplayURL(id, displayURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return ErrUnknownMessage
	}
	if s.msgs[i].Media == nil {
		return ErrNoMedia
	}
	media := *s.msgs[i].Media
	media.DisplayURL = displayURL
	s.msgs[i].Media = &media
	s.publish(bus.KindMessageUpdated, s.msgs[i])
	return nil
}

// Media returns the attachment of a visible message, or ErrNoMedia.
func (s *Store) Media(id string) (*Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, ErrUnknownMessage
	}
	if s.msgs[i].Media == nil {
		return nil, ErrNoMedia
	}
	media := *s.msgs[i].Media
	return &media, nil
}

func (s *Store) index(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	removed := s.msgs[i]
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	s.publish(bus.KindMessageRemoved, removed)
	return true
}

func (s *Store) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(kind, payload)
}
