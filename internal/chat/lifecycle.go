package chat

import (
	"fmt"
	"slices"
)

// Status tracks a message through the local send lifecycle.
type Status string

const (
	// StatusComposing is the pre-submit state: the user is still editing.
	StatusComposing Status = "composing"
	// StatusUploading means the optimistic entry is visible and its
	// attachment transfer has not resolved yet.
	StatusUploading Status = "uploading"
	// StatusPending means the persist call is in flight.
	StatusPending Status = "pending"
	// StatusConfirmed means the server acknowledged the message.
	StatusConfirmed Status = "confirmed"
	// StatusFailed means the upload or persist step failed; the entry is
	// removed from the visible list.
	StatusFailed Status = "failed"
)

// validAdvances defines the allowed lifecycle transitions.
var validAdvances = map[Status][]Status{
	StatusComposing: {StatusUploading, StatusPending},
	StatusUploading: {StatusPending, StatusFailed},
	StatusPending:   {StatusConfirmed, StatusFailed},
	StatusConfirmed: {},
	StatusFailed:    {},
}

// Advance validates a lifecycle transition.
func Advance(from, to Status) error {
	if !slices.Contains(validAdvances[from], to) {
		return fmt.Errorf("invalid message transition from %s to %s", from, to)
	}
	return nil
}
