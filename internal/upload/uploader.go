package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/observability"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// Constraints bound a single upload. AcceptedTypePatterns use MIME patterns
// such as "image/*" or "application/pdf"; empty means any type.
type Constraints struct {
	MaxSizeBytes         int64
	AcceptedTypePatterns []string
}

// Accepts reports whether the content type matches any accepted pattern.
func (c Constraints) Accepts(contentType string) bool {
	if len(c.AcceptedTypePatterns) == 0 {
		return true
	}
	for _, pattern := range c.AcceptedTypePatterns {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(contentType, prefix+"/") {
				return true
			}
			continue
		}
		if contentType == pattern {
			return true
		}
	}
	return false
}

// File is one attachment candidate with a known size.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ProgressFunc receives best-effort, monotonically non-decreasing upload
// fractions in [0, 1].
type ProgressFunc func(fraction float64)

// Uploader transfers one file to blob storage, reporting progress and
// yielding a stable attachment reference.
type Uploader struct {
	storage BlobStorage
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewUploader constructs the uploader.
func NewUploader(storage BlobStorage, metrics *observability.Metrics, logger *zap.Logger) *Uploader {
	return &Uploader{storage: storage, metrics: metrics, logger: logger}
}

// Upload validates the file against the constraints before any network call,
// then streams it to storage. Exactly one terminal outcome follows zero or
// more progress callbacks. Cancelling ctx abandons the upload: no terminal
// success is produced and any bytes already transferred are leaked to the
// storage backend (orphan collection is out of scope).
func (u *Uploader) Upload(ctx context.Context, ticketID string, file File, constraints Constraints, progress ProgressFunc) (*domain.Attachment, error) {
	if constraints.MaxSizeBytes > 0 && file.Size > constraints.MaxSizeBytes {
		u.metrics.RecordUpload(apperrors.CodeFileTooLarge)
		return nil, apperrors.NewFileTooLarge(file.Size, constraints.MaxSizeBytes)
	}
	if !constraints.Accepts(file.ContentType) {
		u.metrics.RecordUpload(apperrors.CodeValidationFailed)
		return nil, apperrors.NewValidationError("attachment type not accepted", map[string]any{
			"content_type": file.ContentType,
		})
	}

	key := DestinationKey(ticketID, time.Now(), file.Name)
	reader := newProgressReader(file.Reader, file.Size, progress)

	url, err := u.storage.Put(ctx, key, reader, file.ContentType, file.Size)
	if err != nil {
		u.metrics.RecordUpload(apperrors.CodeUploadFailed)
		return nil, apperrors.NewUploadFailed(err)
	}
	if ctx.Err() != nil {
		// Abandoned mid-flight: the blob may exist but must not surface as a
		// created attachment.
		u.metrics.RecordUpload(apperrors.CodeUploadFailed)
		return nil, apperrors.NewUploadFailed(ctx.Err())
	}

	reader.finish()
	u.metrics.RecordUpload("ok")
	u.logger.Debug("attachment stored",
		zap.String("ticket_id", ticketID),
		zap.String("key", key),
		zap.Int64("size_bytes", file.Size))

	return &domain.Attachment{
		URL:         url,
		StorageKey:  key,
		FileName:    file.Name,
		ContentType: file.ContentType,
		SizeBytes:   file.Size,
	}, nil
}

// DestinationKey derives the storage path deterministically from ticket id,
// a monotonic timestamp and the original file name, avoiding collisions
// without a coordination service.
func DestinationKey(ticketID string, at time.Time, fileName string) string {
	return path.Join("tickets", ticketID, fmt.Sprintf("%d_%s", at.UnixNano(), sanitizeFileName(fileName)))
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// progressReader emits non-decreasing fractions as bytes flow through it.
type progressReader struct {
	inner    io.Reader
	total    int64
	read     int64
	last     float64
	progress ProgressFunc
}

func newProgressReader(inner io.Reader, total int64, progress ProgressFunc) *progressReader {
	return &progressReader{inner: inner, total: total, progress: progress}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.emit(float64(r.read) / float64(r.total))
	}
	return n, err
}

func (r *progressReader) emit(fraction float64) {
	if r.progress == nil || r.total <= 0 {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction <= r.last {
		return
	}
	r.last = fraction
	r.progress(fraction)
}

// finish reports completion for empty files and short final reads.
func (r *progressReader) finish() {
	if r.progress != nil && r.last < 1 {
		r.last = 1
		r.progress(1)
	}
}
