package upload

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-service/internal/observability"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

type fakeStorage struct {
	puts     int
	lastKey  string
	lastBody []byte
	cancel   context.CancelFunc
	err      error
}

func (f *fakeStorage) Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error) {
	f.puts++
	f.lastKey = key
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.lastBody = data
	if f.cancel != nil {
		f.cancel()
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader(f.lastBody)), "application/octet-stream", nil
}

func (f *fakeStorage) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func newTestUploader(storage BlobStorage) *Uploader {
	return NewUploader(storage, observability.NewMetrics(), zap.NewNop())
}

func TestConstraintsAccepts(t *testing.T) {
	tests := []struct {
		name        string
		patterns    []string
		contentType string
		want        bool
	}{
		{name: "no patterns accepts anything", patterns: nil, contentType: "video/mp4", want: true},
		{name: "wildcard image", patterns: []string{"image/*", "application/pdf"}, contentType: "image/png", want: true},
		{name: "exact pdf", patterns: []string{"image/*", "application/pdf"}, contentType: "application/pdf", want: true},
		{name: "rejected type", patterns: []string{"image/*", "application/pdf"}, contentType: "video/mp4", want: false},
		{name: "wildcard needs slash boundary", patterns: []string{"image/*"}, contentType: "imagex/png", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Constraints{AcceptedTypePatterns: tt.patterns}
			assert.Equal(t, tt.want, c.Accepts(tt.contentType))
		})
	}
}

func TestUploadRejectsOversizeBeforeTransfer(t *testing.T) {
	storage := &fakeStorage{}
	uploader := newTestUploader(storage)
	constraints := Constraints{MaxSizeBytes: 10}

	var fractions []float64
	_, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "big.png",
		ContentType: "image/png",
		Size:        11,
		Reader:      bytes.NewReader(make([]byte, 11)),
	}, constraints, func(f float64) { fractions = append(fractions, f) })

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeFileTooLarge))
	assert.Zero(t, storage.puts, "oversize file must be rejected before any transfer")
	assert.Empty(t, fractions)
}

func TestUploadAcceptsExactLimit(t *testing.T) {
	storage := &fakeStorage{}
	uploader := newTestUploader(storage)
	constraints := Constraints{MaxSizeBytes: 10, AcceptedTypePatterns: []string{"image/*"}}

	payload := []byte("0123456789")
	att, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "edge.png",
		ContentType: "image/png",
		Size:        int64(len(payload)),
		Reader:      bytes.NewReader(payload),
	}, constraints, nil)

	require.NoError(t, err)
	assert.Equal(t, payload, storage.lastBody)
	assert.Equal(t, "edge.png", att.FileName)
	assert.Equal(t, int64(10), att.SizeBytes)
	assert.Contains(t, att.URL, att.StorageKey)
}

func TestUploadRejectsContentType(t *testing.T) {
	storage := &fakeStorage{}
	uploader := newTestUploader(storage)
	constraints := Constraints{AcceptedTypePatterns: []string{"image/*", "application/pdf"}}

	_, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "movie.mp4",
		ContentType: "video/mp4",
		Size:        4,
		Reader:      strings.NewReader("abcd"),
	}, constraints, nil)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Zero(t, storage.puts)
}

func TestUploadProgressMonotonicAndTerminal(t *testing.T) {
	storage := &fakeStorage{}
	uploader := newTestUploader(storage)

	payload := make([]byte, 64<<10)
	var fractions []float64
	att, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "doc.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(payload)),
		Reader:      bytes.NewReader(payload),
	}, Constraints{}, func(f float64) { fractions = append(fractions, f) })

	require.NoError(t, err)
	require.NotEmpty(t, fractions)
	for i := 1; i < len(fractions); i++ {
		assert.Greater(t, fractions[i], fractions[i-1], "fractions must strictly increase")
	}
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
	assert.Equal(t, int64(len(payload)), att.SizeBytes)
}

func TestUploadEmptyFileStillCompletes(t *testing.T) {
	storage := &fakeStorage{}
	uploader := newTestUploader(storage)

	var fractions []float64
	_, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "empty.pdf",
		ContentType: "application/pdf",
		Size:        0,
		Reader:      bytes.NewReader(nil),
	}, Constraints{}, func(f float64) { fractions = append(fractions, f) })

	require.NoError(t, err)
	assert.Equal(t, []float64{1.0}, fractions)
}

func TestUploadCancelledMidFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	storage := &fakeStorage{cancel: cancel}
	uploader := newTestUploader(storage)

	_, err := uploader.Upload(ctx, "t1", File{
		Name:        "doc.pdf",
		ContentType: "application/pdf",
		Size:        4,
		Reader:      strings.NewReader("abcd"),
	}, Constraints{}, nil)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUploadFailed))
}

func TestUploadStorageFailure(t *testing.T) {
	storage := &fakeStorage{err: io.ErrUnexpectedEOF}
	uploader := newTestUploader(storage)

	att, err := uploader.Upload(context.Background(), "t1", File{
		Name:        "doc.pdf",
		ContentType: "application/pdf",
		Size:        4,
		Reader:      strings.NewReader("abcd"),
	}, Constraints{}, nil)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUploadFailed))
	assert.Nil(t, att)
}

func TestDestinationKey(t *testing.T) {
	at := time.Unix(0, 42)
	key := DestinationKey("ticket-9", at, `..\..\evil name!.pdf`)
	assert.Equal(t, "tickets/ticket-9/42_evil_name_.pdf", key)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())

	url, err := storage.Put(context.Background(), "tickets/t1/1_a.png", strings.NewReader("pixels"), "image/png", 6)
	require.NoError(t, err)
	assert.Contains(t, url, "tickets/t1/1_a.png")

	body, contentType, err := storage.Get(context.Background(), "tickets/t1/1_a.png")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, "image/png", contentType)
}
