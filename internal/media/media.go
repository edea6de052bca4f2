// Package media orchestrates attachment uploads: client-side validation,
// the signed-transfer protocol, and upload status tracking.
package media

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalFile is the ephemeral, client-only handle to a selected file. It
// exists from selection until the send completes, fails, or the user
// clears the selection.
type LocalFile struct {
	Name     string
	MIMEType string
	Size     int64
	Reader   io.Reader

	closer io.Closer
}

// Open builds a LocalFile from a filesystem path, deriving the MIME type
// from the extension.
func Open(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return &LocalFile{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     info.Size(),
		Reader:   f,
		closer:   f,
	}, nil
}

// Close releases the underlying file handle, if any.
func (f *LocalFile) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// UploadStatus tracks an attachment through the transfer pipeline.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadUploaded  UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
)

// Progress is the payload of upload.progress bus events.
type Progress struct {
	FileName string
	Status   UploadStatus
	Pct      int
}

// UnsupportedMediaError marks a file type outside the allow-list.
// Rejected before any network call.
type UnsupportedMediaError struct {
	MIMEType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media type %q", e.MIMEType)
}

// TooLargeError marks a file above the surface's hard size cap.
type TooLargeError struct {
	Size int64
	Max  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file of %d bytes exceeds the %d byte limit", e.Size, e.Max)
}

// UploadError marks a failure at the sign or put step of the transfer
// protocol. It aborts the whole send; no partial attachment persists.
type UploadError struct {
	Step string // "sign" or "put"
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed at %s step: %v", e.Step, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
