package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPersistMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/c1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		var req PersistRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Content != "hi" {
			t.Errorf("content = %q", req.Content)
		}
		// The confirmed message comes back under "messages", singular.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"messages": map[string]any{
				"id":      "srv-1",
				"roomId":  "c1",
				"sender":  map[string]string{"id": "u1", "name": "Ada"},
				"content": "hi",
				"sentAt":  time.Now().UTC().Format(time.RFC3339),
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	msg, err := c.PersistMessage(context.Background(), "c1", PersistRequest{Content: "hi", SenderID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-1" || msg.RoomID != "c1" {
		t.Errorf("confirmed = %+v", msg)
	}
}

func TestPersistMessageServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "room is archived",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.PersistMessage(context.Background(), "c1", PersistRequest{Content: "hi"})

	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("error = %v, want PersistError", err)
	}
	if persistErr.Reason != "room is archived" {
		t.Errorf("reason = %q", persistErr.Reason)
	}
}

func TestPersistMessageTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if _, err := c.PersistMessage(context.Background(), "c1", PersistRequest{Content: "hi"}); err == nil {
		t.Error("expected error on 500")
	}
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/c1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		if got := r.URL.Query().Get("before"); got == "" {
			t.Error("before parameter missing")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"messages": []map[string]any{
				{"id": "m1", "roomId": "c1", "sender": "u1", "content": "one", "sentAt": "2026-01-02T10:00:00Z"},
				{"id": "m2", "roomId": "c1", "sender": "u2", "content": "two", "sentAt": "2026-01-02T10:01:00Z"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	msgs, err := c.History(context.Background(), "c1", time.Now(), 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Bare-string senders are upgraded to identity records.
	if msgs[0].Sender.ID != "u1" {
		t.Errorf("sender = %+v", msgs[0].Sender)
	}
}

func TestEnsureChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/courses/course-9/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"chat": map[string]any{
				"id":           "c1",
				"courseId":     "course-9",
				"instructorId": "u-instr",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	room, err := c.EnsureChat(context.Background(), "course-9")
	if err != nil {
		t.Fatal(err)
	}
	if room.ID != "c1" || room.CourseID != "course-9" {
		t.Errorf("room = %+v", room)
	}
}

func TestMarkRead(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.URL.Path != "/chats/c1/read" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if err := c.MarkRead(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("backend not called")
	}
}

func TestMarkReadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if err := c.MarkRead(context.Background(), "c1"); err == nil {
		t.Error("expected error on success=false")
	}
}
