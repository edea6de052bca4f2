package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Role of a participant within a course conversation.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Sender identifies who authored a message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// UnmarshalJSON upgrades a bare identity string to a minimal identity
// record. Some broadcast payloads carry only the sender id.
func (s *Sender) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*s = Sender{ID: id}
		return nil
	}
	type plain Sender
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Sender(p)
	return nil
}

// MediaKind classifies an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// KindForMIME derives the media kind from a MIME type prefix.
func KindForMIME(mimeType string) MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo
	default:
		return MediaFile
	}
}

// Media is the persisted attachment reference carried by a message.
// URL is the durable reference, stable for the lifetime of the blob.
// DisplayURL is time-limited and refreshable without re-uploading.
type Media struct {
	URL        string    `json:"url"`
	Type       MediaKind `json:"type"`
	DisplayURL string    `json:"displayUrl,omitempty"`
}

func (k MediaKind) valid() bool {
	return k == MediaImage || k == MediaVideo || k == MediaFile
}

// ReadReceipt records when a participant read a message.
type ReadReceipt struct {
	ReaderID string    `json:"readerId"`
	ReadAt   time.Time `json:"readAt"`
}

// Message is a single chat entry. The ID is client-generated until the
// persist call confirms the message, then server-issued.
type Message struct {
	ID      string        `json:"id"`
	RoomID  string        `json:"roomId"`
	Sender  Sender        `json:"sender"`
	Content string        `json:"content,omitempty"`
	Media   *Media        `json:"media,omitempty"`
	SentAt  time.Time     `json:"sentAt"`
	IsRead  bool          `json:"isRead"`
	ReadBy  []ReadReceipt `json:"readBy,omitempty"`

	// Status tracks the local send lifecycle, never sent on the wire.
	Status Status `json:"-"`
}

// Valid reports whether a message is structurally admissible: it must
// carry an id, a room, a sender, and either content or an attachment
// with a recognized kind.
func (m *Message) Valid() bool {
	if m.ID == "" || m.RoomID == "" || m.Sender.ID == "" {
		return false
	}
	if m.Content == "" && m.Media == nil {
		return false
	}
	if m.Media != nil && !m.Media.valid() {
		return false
	}
	return true
}

func (md *Media) valid() bool {
	return md.URL != "" && md.Type.valid()
}

// Preview returns the denormalized lastMessage summary text: the content
// when present, otherwise a media-type label.
func (m *Message) Preview() string {
	if m.Content != "" {
		return truncate(m.Content, 100)
	}
	if m.Media != nil {
		return "[" + string(m.Media.Type) + "]"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Participant is a room member.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// LastMessage is the denormalized summary shown on a room list entry.
type LastMessage struct {
	Preview  string    `json:"preview"`
	SentAt   time.Time `json:"sentAt"`
	SenderID string    `json:"senderId"`
}

// Room is a course-scoped conversation between an instructor and one or
// more students. Created lazily on first access to a course's chat.
type Room struct {
	ID           string        `json:"id"`
	CourseID     string        `json:"courseId"`
	InstructorID string        `json:"instructorId"`
	Participants []Participant `json:"participants,omitempty"`
	LastMessage  LastMessage   `json:"lastMessage"`
	UnreadCount  int           `json:"unreadCount"`
}
