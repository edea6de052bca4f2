// Package api is the REST client for the course-chat backend: message
// persistence, history, lazy chat creation and read receipts. These run
// over the ordinary request channel, not the broadcast channel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/courseloop/chatsync/internal/chat"
	"go.uber.org/zap"
)

// PersistError is a non-success response from the persist call. Reason
// carries the server-provided message when available.
type PersistError struct {
	Reason string
}

func (e *PersistError) Error() string {
	if e.Reason == "" {
		return "persist call failed"
	}
	return "persist call failed: " + e.Reason
}

// Client talks to the chat backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

// PersistRequest is the persist call body.
type PersistRequest struct {
	Content  string      `json:"content,omitempty"`
	Media    *chat.Media `json:"media,omitempty"`
	SenderID string      `json:"senderId,omitempty"`
}

// persistResponse mirrors the backend shape. The confirmed message comes
// back under the key "messages", singular — a backend naming quirk the
// wire contract preserves.
type persistResponse struct {
	Success   bool         `json:"success"`
	Confirmed chat.Message `json:"messages"`
	Message   string       `json:"message,omitempty"`
}

// PersistMessage stores a message in the given room and returns the
// server-confirmed entry with its server-issued id.
func (c *Client) PersistMessage(ctx context.Context, roomID string, req PersistRequest) (*chat.Message, error) {
	var resp persistResponse
	err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(roomID)+"/messages", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if !resp.Success {
		return nil, &PersistError{Reason: resp.Message}
	}
	confirmed := resp.Confirmed
	if confirmed.RoomID == "" {
		confirmed.RoomID = roomID
	}
	return &confirmed, nil
}

type historyResponse struct {
	Success  bool           `json:"success"`
	Messages []chat.Message `json:"messages"`
}

// History fetches the room's messages in chronological order, using
// keyset pagination by send time. A zero before means "latest".
func (c *Client) History(ctx context.Context, roomID string, before time.Time, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	path := "/chats/" + url.PathEscape(roomID) + "/messages?limit=" + strconv.Itoa(limit)
	if !before.IsZero() {
		path += "&before=" + url.QueryEscape(before.UTC().Format(time.RFC3339Nano))
	}

	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return resp.Messages, nil
}

type ensureChatResponse struct {
	Success bool      `json:"success"`
	Chat    chat.Room `json:"chat"`
}

// EnsureChat returns the course's chat room, creating it lazily on first
// access if none exists.
func (c *Client) EnsureChat(ctx context.Context, courseID string) (*chat.Room, error) {
	var resp ensureChatResponse
	err := c.do(ctx, http.MethodPost, "/courses/"+url.PathEscape(courseID)+"/chat", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("ensure chat: %w", err)
	}
	if !resp.Success || resp.Chat.ID == "" {
		return nil, fmt.Errorf("ensure chat: backend returned no room")
	}
	return &resp.Chat, nil
}

type markReadResponse struct {
	Success bool `json:"success"`
}

// MarkRead marks all of the room's messages read for the caller.
func (c *Client) MarkRead(ctx context.Context, roomID string) error {
	var resp markReadResponse
	err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(roomID)+"/read", nil, &resp)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("mark read: backend rejected request")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
