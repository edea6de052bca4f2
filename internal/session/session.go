// Package session wires the sync engine to a single active room. The
// Session is the arena for all per-session mutable state: the active
// room pointer, the visible list, the dedup registry and the unread
// counters all live behind it rather than in package globals.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/courseloop/chatsync/internal/api"
	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/channel"
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/media"
	"github.com/courseloop/chatsync/internal/metrics"
	"github.com/courseloop/chatsync/internal/receipts"
	"github.com/courseloop/chatsync/internal/rooms"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const historyLimit = 50

// Backend is the REST surface the session needs.
type Backend interface {
	PersistMessage(ctx context.Context, roomID string, req api.PersistRequest) (*chat.Message, error)
	History(ctx context.Context, roomID string, before time.Time, limit int) ([]chat.Message, error)
	EnsureChat(ctx context.Context, courseID string) (*chat.Room, error)
}

// Channel is the live-channel surface the session needs.
type Channel interface {
	Connect(ctx context.Context, identityID string) error
	On(event string, h channel.Handler)
	Emit(event string, payload any) error
	Close()
}

// Uploader runs the attachment pipeline.
type Uploader interface {
	Validate(f *media.LocalFile) error
	Upload(ctx context.Context, f *media.LocalFile) (*chat.Media, error)
}

// Refresher re-issues display references from durable references.
type Refresher interface {
	RefreshDisplayRef(ctx context.Context, durableRef string) (string, error)
}

// Deps bundles the session's collaborators.
type Deps struct {
	Backend   Backend
	Channel   Channel
	Uploader  Uploader
	Refresher Refresher
	Rooms     *rooms.Manager
	Store     *chat.Store
	Receipts  *receipts.Tracker
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Session is the chat session controller consumed by the instructor and
// student surfaces.
type Session struct {
	identity chat.Sender
	timeout  time.Duration

	backend   Backend
	channel   Channel
	uploader  Uploader
	refresher Refresher
	rooms     *rooms.Manager
	store     *chat.Store
	receipts  *receipts.Tracker
	bus       *bus.Bus
	logger    *zap.Logger

	mu         sync.Mutex
	activeRoom string
	roomIndex  map[string]*chat.Room
}

// New creates a session for the authenticated identity.
func New(identity chat.Sender, timeout time.Duration, d Deps) *Session {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		identity:  identity,
		timeout:   timeout,
		backend:   d.Backend,
		channel:   d.Channel,
		uploader:  d.Uploader,
		refresher: d.Refresher,
		rooms:     d.Rooms,
		store:     d.Store,
		receipts:  d.Receipts,
		bus:       d.Bus,
		logger:    logger,
		roomIndex: make(map[string]*chat.Room),
	}
}

// Start connects the live channel and begins routing inbound broadcasts.
func (s *Session) Start(ctx context.Context) error {
	s.channel.On("message", s.handleBroadcast)
	s.rooms.Start(ctx)
	if err := s.channel.Connect(ctx, s.identity.ID); err != nil {
		s.rooms.Stop()
		return err
	}
	s.logger.Info("session started", zap.String("identity", s.identity.ID))
	return nil
}

// Close tears the session down.
func (s *Session) Close() {
	s.rooms.Stop()
	s.channel.Close()
	s.logger.Info("session closed")
}

// ActiveRoom returns the currently open room id, or empty.
func (s *Session) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

// Messages returns a snapshot of the active room's visible list.
func (s *Session) Messages() []chat.Message {
	return s.store.Messages()
}

// OpenCourseChat resolves a course's chat room, creating it lazily on
// first access, then opens it.
func (s *Session) OpenCourseChat(ctx context.Context, courseID string) (*chat.Room, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	room, err := s.backend.EnsureChat(rctx, courseID)
	if err != nil {
		s.notice("room", err)
		return nil, err
	}

	s.mu.Lock()
	s.roomIndex[room.ID] = room
	s.mu.Unlock()

	if err := s.OpenRoom(ctx, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

// OpenRoom activates a room: reset the dedup registry and visible list,
// leave the previous room, join the new one before history is fetched
// so broadcasts are not missed during the loading window, load history
// and mark the room read. Mark-read runs in the background and never
// blocks rendering.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	prev := s.activeRoom
	s.activeRoom = roomID
	s.mu.Unlock()

	s.store.ResetForRoom(roomID)

	if prev != "" && prev != roomID {
		if err := s.rooms.Leave(prev); err != nil {
			s.logger.Warn("leave previous room failed", zap.String("room_id", prev), zap.Error(err))
		}
	}

	if err := s.rooms.Join(roomID); err != nil {
		s.notice("room", err)
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	history, err := s.backend.History(rctx, roomID, time.Time{}, historyLimit)
	if err != nil {
		s.notice("history", err)
		return err
	}
	// The store drops the load if the active room changed while the
	// fetch was in flight.
	s.store.LoadHistory(roomID, history)

	go func() {
		mctx, mcancel := context.WithTimeout(context.Background(), s.timeout)
		defer mcancel()
		_ = s.receipts.MarkRead(mctx, roomID)
	}()

	s.publish(bus.KindRoomOpened, roomID)
	return nil
}

// Send runs the send pipeline: optimistic insert, attachment upload when
// present, persist, confirm-or-rollback, then the outbound broadcast so
// other participants receive the message in real time. A send with no
// content and no attachment is a silent no-op.
func (s *Session) Send(ctx context.Context, content string, file *media.LocalFile) error {
	if content == "" && file == nil {
		s.logger.Debug("ignoring empty send")
		return nil
	}

	roomID := s.ActiveRoom()
	if roomID == "" {
		return chat.ErrNoActiveRoom
	}

	// Policy runs before the optimistic echo and before any network call.
	if file != nil {
		if err := s.uploader.Validate(file); err != nil {
			s.notice("media", err)
			return err
		}
	}

	metrics.MessagesSent.Inc()

	temp := chat.Message{
		ID:      "local-" + uuid.NewString(),
		RoomID:  roomID,
		Sender:  s.identity,
		Content: content,
		SentAt:  time.Now(),
		Status:  chat.StatusPending,
	}
	if file != nil {
		temp.Status = chat.StatusUploading
	}
	if err := s.store.InsertPending(temp); err != nil {
		return err
	}

	var attachment *chat.Media
	if file != nil {
		med, err := s.uploader.Upload(ctx, file)
		if err != nil {
			s.store.Rollback(temp.ID)
			metrics.MessagesFailed.Inc()
			s.notice("upload", err)
			return err
		}
		attachment = med
		// The persist call is only issued once the upload resolved to a
		// durable reference. If the room changed mid-upload the temp
		// entry is already gone; the room guard below still applies.
		if err := s.store.SetStatus(temp.ID, chat.StatusPending); err != nil {
			s.logger.Debug("upload finished for inactive room", zap.String("room_id", roomID))
		}
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	confirmed, err := s.backend.PersistMessage(rctx, roomID, api.PersistRequest{
		Content:  content,
		Media:    attachment,
		SenderID: s.identity.ID,
	})
	if err != nil {
		s.store.Rollback(temp.ID)
		metrics.MessagesFailed.Inc()
		s.notice("send", err)
		return err
	}

	if err := s.store.Confirm(temp.ID, *confirmed); err != nil {
		// The user switched rooms while the persist call was in flight;
		// the confirmation must not leak into the now-active room.
		s.logger.Debug("confirmation dropped after room switch",
			zap.String("room_id", confirmed.RoomID))
		return nil
	}

	metrics.MessagesConfirmed.Inc()
	s.touchLastMessage(confirmed)

	if err := s.channel.Emit("newMessage", confirmed); err != nil {
		// Participants still get the message through the server's own
		// broadcast of the persisted entry; log and move on.
		s.logger.Warn("outbound broadcast failed", zap.Error(err))
	}
	return nil
}

// RefreshDisplay re-issues an expired display reference for a rendered
// attachment and swaps it in place, without re-uploading or re-sending.
func (s *Session) RefreshDisplay(ctx context.Context, messageID string) error {
	med, err := s.store.Media(messageID)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	fresh, err := s.refresher.RefreshDisplayRef(rctx, med.URL)
	if err != nil {
		s.notice("media", err)
		return err
	}
	return s.store.RefreshDisplayURL(messageID, fresh)
}

// Rooms returns the known rooms sorted by last-message recency, with
// unread counters attached.
func (s *Session) Rooms() []chat.Room {
	s.mu.Lock()
	out := make([]chat.Room, 0, len(s.roomIndex))
	for _, r := range s.roomIndex {
		out = append(out, *r)
	}
	s.mu.Unlock()

	for i := range out {
		out[i].UnreadCount = s.receipts.Unread(out[i].ID)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.SentAt.After(out[j].LastMessage.SentAt)
	})
	return out
}

// handleBroadcast routes one inbound channel message. Messages for the
// active room go through the reconciler; messages for other rooms only
// bump that room's unread counter and last-message summary.
func (s *Session) handleBroadcast(data json.RawMessage) {
	var m chat.Message
	if err := json.Unmarshal(data, &m); err != nil {
		metrics.MalformedDropped.Inc()
		s.logger.Warn("undecodable broadcast payload", zap.Error(err))
		return
	}

	err := s.store.AdmitBroadcast(m)
	switch {
	case err == nil:
		s.touchLastMessage(&m)
	case errors.Is(err, chat.ErrRoomMismatch):
		if m.Sender.ID != s.identity.ID {
			s.receipts.IncrementUnread(m.RoomID)
		}
		s.touchLastMessage(&m)
	default:
		// Duplicate or malformed; the store already logged the drop.
	}
}

func (s *Session) touchLastMessage(m *chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomIndex[m.RoomID]
	if !ok {
		room = &chat.Room{ID: m.RoomID}
		s.roomIndex[m.RoomID] = room
	}
	if m.SentAt.After(room.LastMessage.SentAt) {
		room.LastMessage = chat.LastMessage{
			Preview:  m.Preview(),
			SentAt:   m.SentAt,
			SenderID: m.Sender.ID,
		}
	}
}

func (s *Session) notice(source string, err error) {
	s.logger.Warn("surfacing notice", zap.String("source", source), zap.Error(err))
	if s.bus == nil {
		return
	}
	s.bus.Emit(bus.KindNotice, bus.Notice{Source: source, Message: err.Error()})
}

func (s *Session) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(kind, payload)
}
