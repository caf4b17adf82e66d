package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/spec-kit/conversation-service/internal/config"
)

// BlobStorage stores attachment bytes and hands back retrievable URLs.
type BlobStorage interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	PublicURL(key string) string
}

// NewStorage selects the S3-compatible backend when configured, local
// filesystem otherwise.
func NewStorage(cfg config.StorageConfig) (BlobStorage, error) {
	if cfg.S3Configured() {
		return newS3Storage(cfg)
	}
	return &localStorage{baseDir: cfg.LocalDir, publicURL: cfg.PublicURL}, nil
}

type s3Storage struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

func newS3Storage(cfg config.StorageConfig) (*s3Storage, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(cfg.S3Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &s3Storage{client: client, bucket: cfg.S3Bucket, publicURL: cfg.PublicURL}, nil
}

func (s *s3Storage) Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.PublicURL(key), nil
}

func (s *s3Storage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return result.Body, contentType, nil
}

func (s *s3Storage) PublicURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.publicURL, "/"), key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

type localStorage struct {
	baseDir   string
	publicURL string
}

// NewLocalStorage stores attachments on the local filesystem; used in
// development and tests.
func NewLocalStorage(baseDir string) BlobStorage {
	return &localStorage{baseDir: baseDir}
}

func (l *localStorage) Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error) {
	fullPath := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return l.PublicURL(key), nil
}

func (l *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	file, err := os.Open(filepath.Join(l.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, "", err
	}

	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".png":
		contentType = "image/png"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	}
	return file, contentType, nil
}

func (l *localStorage) PublicURL(key string) string {
	if l.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(l.publicURL, "/"), key)
	}
	return "/" + filepath.ToSlash(filepath.Join(l.baseDir, key))
}
