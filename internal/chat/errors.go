package chat

import "errors"

var (
	// ErrNoActiveRoom is returned when an operation requires an open room.
	ErrNoActiveRoom = errors.New("no active room")

	// ErrMalformedMessage marks a structurally invalid broadcast payload.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrRoomMismatch marks a message targeting a room that is not the
	// currently active one. Such messages are dropped, never buffered.
	ErrRoomMismatch = errors.New("message targets an inactive room")

	// ErrDuplicateMessage marks a message id already admitted to the
	// visible list.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrUnknownMessage is returned when an id is not in the visible list.
	ErrUnknownMessage = errors.New("message not found")

	// ErrNoMedia is returned when a display-reference refresh targets a
	// message without an attachment.
	ErrNoMedia = errors.New("message has no attachment")
)
