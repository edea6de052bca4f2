// Package transfer implements the signed-transfer protocol against the
// object-storage backend: writes go through short-lived signed URLs, reads
// through separately-refreshable signed URLs.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Destination is the backend's answer to a write-destination request.
// The durable reference and the initial display reference come back with
// the write URL; no third round trip is needed on the happy path.
type Destination struct {
	WriteURL   string
	DurableRef string
	DisplayRef string
}

// Client talks to the signing endpoints and performs raw uploads.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a signed-transfer client rooted at the API base URL.
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

type signRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Folder   string `json:"folder"`
}

type signResponse struct {
	URL         string `json:"url"`
	ImageURL    string `json:"imageUrl"`
	DownloadURL string `json:"downloadUrl"`
}

type refreshRequest struct {
	MediaURL string `json:"mediaUrl"`
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl"`
}

// RequestWriteDestination asks the backend for a short-lived write URL
// scoped to a logical folder, plus the blob's durable and display references.
func (c *Client) RequestWriteDestination(ctx context.Context, fileName, fileType, folder string) (*Destination, error) {
	var resp signResponse
	err := c.postJSON(ctx, "/media/sign-upload", signRequest{
		FileName: fileName,
		FileType: fileType,
		Folder:   folder,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("request write destination: %w", err)
	}
	if resp.URL == "" || resp.ImageURL == "" {
		return nil, fmt.Errorf("request write destination: incomplete response")
	}
	return &Destination{
		WriteURL:   resp.URL,
		DurableRef: resp.ImageURL,
		DisplayRef: resp.DownloadURL,
	}, nil
}

// PutBytes uploads the raw bytes to the signed write URL with the file's
// MIME type as content type. onProgress, when non-nil, receives the
// transfer percentage derived from bytes written.
func (c *Client) PutBytes(ctx context.Context, writeURL, contentType string, body io.Reader, size int64, onProgress func(pct int)) error {
	var reader io.Reader = body
	if onProgress != nil && size > 0 {
		reader = &progressReader{r: body, total: size, onProgress: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, writeURL, reader)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload bytes: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload bytes: destination returned %s", resp.Status)
	}
	return nil
}

// RefreshDisplayRef exchanges a durable reference for a fresh display
// reference. Used when a render-time read fails on an expired signed URL.
func (c *Client) RefreshDisplayRef(ctx context.Context, durableRef string) (string, error) {
	var resp refreshResponse
	err := c.postJSON(ctx, "/media/refresh-url", refreshRequest{MediaURL: durableRef}, &resp)
	if err != nil {
		return "", fmt.Errorf("refresh display ref: %w", err)
	}
	if !resp.Success || resp.DownloadURL == "" {
		return "", fmt.Errorf("refresh display ref: backend rejected request")
	}
	return resp.DownloadURL, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
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

// progressReader reports upload progress as a percentage, emitting only
// on change so a large file does not flood the callback.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	lastPct    int
	onProgress func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.onProgress(pct)
		}
	}
	return n, err
}
