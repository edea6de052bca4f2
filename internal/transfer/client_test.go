package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestWriteDestination(t *testing.T) {
	var got signRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/sign-upload" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(signResponse{
			URL:         "https://bucket/put/abc",
			ImageURL:    "durable://abc",
			DownloadURL: "https://bucket/get/abc?sig=1",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	dest, err := c.RequestWriteDestination(context.Background(), "photo.jpg", "image/jpeg", "chat-media")
	if err != nil {
		t.Fatal(err)
	}

	if got.FileName != "photo.jpg" || got.FileType != "image/jpeg" || got.Folder != "chat-media" {
		t.Errorf("request = %+v", got)
	}
	if dest.WriteURL != "https://bucket/put/abc" {
		t.Errorf("WriteURL = %q", dest.WriteURL)
	}
	if dest.DurableRef != "durable://abc" {
		t.Errorf("DurableRef = %q", dest.DurableRef)
	}
	if dest.DisplayRef != "https://bucket/get/abc?sig=1" {
		t.Errorf("DisplayRef = %q", dest.DisplayRef)
	}
}

func TestRequestWriteDestinationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if _, err := c.RequestWriteDestination(context.Background(), "f", "t", "chat-media"); err == nil {
		t.Error("expected error on 403")
	}
}

func TestPutBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, payload) {
			t.Errorf("body length = %d, want %d", len(body), len(payload))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var progress []int
	c := NewClient(srv.URL, "", nil)
	err := c.PutBytes(context.Background(), srv.URL, "image/jpeg",
		bytes.NewReader(payload), int64(len(payload)),
		func(pct int) { progress = append(progress, pct) })
	if err != nil {
		t.Fatal(err)
	}

	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	last := progress[len(progress)-1]
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Errorf("progress not strictly increasing: %v", progress)
			break
		}
	}
}

func TestPutBytesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature expired", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	err := c.PutBytes(context.Background(), srv.URL, "image/jpeg", bytes.NewReader([]byte("x")), 1, nil)
	if err == nil {
		t.Error("expected error on 403")
	}
}

func TestRefreshDisplayRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/refresh-url" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MediaURL != "durable://abc" {
			t.Errorf("mediaUrl = %q", req.MediaURL)
		}
		_ = json.NewEncoder(w).Encode(refreshResponse{Success: true, DownloadURL: "https://fresh"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	url, err := c.RefreshDisplayRef(context.Background(), "durable://abc")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://fresh" {
		t.Errorf("url = %q, want https://fresh", url)
	}
}

func TestRefreshDisplayRefRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(refreshResponse{Success: false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if _, err := c.RefreshDisplayRef(context.Background(), "durable://abc"); err == nil {
		t.Error("expected error when backend rejects refresh")
	}
}
