package chat

import "sync"

// Dedup is the per-room registry of message ids already admitted to the
// visible list. Both the persist-response path and the broadcast path
// consult it, collapsing double delivery to exactly one rendered entry.
// It is reset whenever the open room changes and is never persisted.
type Dedup struct {
	mu     sync.Mutex
	roomID string
	seen   map[string]struct{}
}

// NewDedup creates an empty registry bound to no room.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]struct{})}
}

// Reset clears the registry and binds it to the given room.
func (d *Dedup) Reset(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roomID = roomID
	d.seen = make(map[string]struct{})
}

// Register records id and reports whether it was new.
func (d *Dedup) Register(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Seen reports whether id has already been registered.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// RoomID returns the room the registry is currently scoped to.
func (d *Dedup) RoomID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roomID
}

// Len returns the number of registered ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
