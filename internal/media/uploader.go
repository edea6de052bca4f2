package media

import (
	"context"
	"strings"

	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/config"
	"github.com/courseloop/chatsync/internal/metrics"
	"github.com/courseloop/chatsync/internal/transfer"
	"go.uber.org/zap"
)

// Policy is the client-side attachment allow-list. An AllowedTypes entry
// ending in "/" matches as a MIME prefix, otherwise it matches exactly.
type Policy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Validate checks a selected file against the policy without touching
// the network.
func (p Policy) Validate(f *LocalFile) error {
	allowed := false
	for _, t := range p.AllowedTypes {
		if strings.HasSuffix(t, "/") {
			if strings.HasPrefix(f.MIMEType, t) {
				allowed = true
				break
			}
		} else if f.MIMEType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return &UnsupportedMediaError{MIMEType: f.MIMEType}
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return &TooLargeError{Size: f.Size, Max: p.MaxBytes}
	}
	return nil
}

// Uploader runs the signed-transfer protocol for a selected local file
// and resolves the durable plus display references.
type Uploader struct {
	transfer *transfer.Client
	policy   Policy
	folder   string
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewUploader creates an uploader bound to the configured media policy.
func NewUploader(t *transfer.Client, cfg config.MediaConfig, b *bus.Bus, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		transfer: t,
		policy:   Policy{MaxBytes: cfg.MaxBytes, AllowedTypes: cfg.AllowedTypes},
		folder:   cfg.Folder,
		bus:      b,
		logger:   logger,
	}
}

// Validate applies the client-side policy to a selected file.
func (u *Uploader) Validate(f *LocalFile) error {
	return u.policy.Validate(f)
}

// Upload validates the file, requests a write destination, uploads the
// raw bytes and returns the attachment reference for the persist call.
// Failure at either network step aborts with no partial attachment.
func (u *Uploader) Upload(ctx context.Context, f *LocalFile) (*chat.Media, error) {
	if err := u.policy.Validate(f); err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	u.publishProgress(f, UploadPending, 0)

	dest, err := u.transfer.RequestWriteDestination(ctx, f.Name, f.MIMEType, u.folder)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		u.publishProgress(f, UploadFailed, 0)
		return nil, &UploadError{Step: "sign", Err: err}
	}

	u.publishProgress(f, UploadUploading, 0)
	err = u.transfer.PutBytes(ctx, dest.WriteURL, f.MIMEType, f.Reader, f.Size, func(pct int) {
		u.publishProgress(f, UploadUploading, pct)
	})
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		u.publishProgress(f, UploadFailed, 0)
		return nil, &UploadError{Step: "put", Err: err}
	}

	metrics.Uploads.WithLabelValues("uploaded").Inc()
	u.publishProgress(f, UploadUploaded, 100)
	u.logger.Info("attachment uploaded",
		zap.String("file", f.Name),
		zap.String("durable_ref", dest.DurableRef),
		zap.Int64("bytes", f.Size))

	return &chat.Media{
		URL:        dest.DurableRef,
		Type:       chat.KindForMIME(f.MIMEType),
		DisplayURL: dest.DisplayRef,
	}, nil
}

func (u *Uploader) publishProgress(f *LocalFile, st UploadStatus, pct int) {
	if u.bus == nil {
		return
	}
	u.bus.Emit(bus.KindUploadProgress, Progress{FileName: f.Name, Status: st, Pct: pct})
}
