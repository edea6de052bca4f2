package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds are dot-separated and grouped by namespace prefix so a
// subscriber can watch a whole family at once:
//
//	message.*  visible-list changes in the active room
//	room.*     room activation, membership and unread-count changes
//	channel.*  live-channel connection lifecycle
//	upload.*   attachment transfer progress
//	notice.*   non-blocking user-facing notifications
const (
	KindMessageAppended  = "message.appended"
	KindMessageConfirmed = "message.confirmed"
	KindMessageRemoved   = "message.removed"
	KindMessageUpdated   = "message.updated"
	KindHistoryLoaded    = "message.history_loaded"

	KindRoomOpened        = "room.opened"
	KindRoomJoined        = "room.joined"
	KindRoomLeft          = "room.left"
	KindRoomRead          = "room.read"
	KindRoomUnreadChanged = "room.unread_changed"

	KindChannelConnected     = "channel.connected"
	KindChannelDisconnected  = "channel.disconnected"
	KindChannelStatusChanged = "channel.status_changed"

	KindUploadProgress = "upload.progress"

	KindNotice = "notice.error"
)

// Notice is the payload of notice.* events: a non-blocking, user-visible
// notification. It never represents a fatal engine state.
type Notice struct {
	Source  string
	Message string
}

