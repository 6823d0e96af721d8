package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ErrNotFound is returned by S3Client implementations for a missing object.
var ErrNotFound = errors.New("object not found")

// S3Client defines the minimal object-store interface used by the adapter.
// MinioClient is the production implementation; tests inject doubles.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, meta map[string]string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
}

// S3 is the StorageAdapter backed by S3 or an S3-compatible store.
type S3 struct {
	client S3Client
	bucket string
}

// NewS3 creates an S3 adapter.  client must not be nil.
func NewS3(client S3Client, defaultBucket string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 storage: client must not be nil")
	}
	return &S3{client: client, bucket: defaultBucket}, nil
}

func (s *S3) bucketFor(key core.StorageKey) string {
	if key.Bucket != "" {
		return key.Bucket
	}
	return s.bucket
}

func (s *S3) Put(ctx context.Context, key core.StorageKey, r io.Reader, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.put", err)
	}
	size := int64(-1)
	if l, ok := r.(interface{ Len() int }); ok {
		size = int64(l.Len())
	}
	if err := s.client.PutObject(ctx, s.bucketFor(key), key.Path, r, size, meta); err != nil {
		return classify("s3.put", err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.get", err)
	}
	rc, err := s.client.GetObject(ctx, s.bucketFor(key), key.Path)
	if err != nil {
		return nil, classify("s3.get", err)
	}
	return rc, nil
}

func (s *S3) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	if err := s.client.DeleteObject(ctx, s.bucketFor(key), key.Path); err != nil {
		return classify("s3.delete", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "s3.exists", err)
	}
	ok, err := s.client.HeadObject(ctx, s.bucketFor(key), key.Path)
	if err != nil {
		return false, classify("s3.exists", err)
	}
	return ok, nil
}

// classify marks missing objects as permanent and everything else as
// transient so the processor retries it.
func classify(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperrors.New(apperrors.CategoryStorage, op, err)
	}
	return apperrors.Transient(op, err)
}

// ── minio-go client ───────────────────────────────────────────────────────────

// MinioClient implements S3Client with the minio-go SDK.
type MinioClient struct {
	client *minio.Client
}

// NewMinioClient connects to cfg.Endpoint with static credentials.
func NewMinioClient(cfg config.S3Config) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "s3.client", fmt.Errorf("endpoint is required"))
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "s3.client", err)
	}
	return &MinioClient{client: client}, nil
}

func (m *MinioClient) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, meta map[string]string) error {
	_, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  meta["content-type"],
		UserMetadata: meta,
	})
	return notFound(err)
}

func (m *MinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing key fails here.
	if _, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, notFound(err)
	}
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	return obj, nil
}

func (m *MinioClient) DeleteObject(ctx context.Context, bucket, key string) error {
	return notFound(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *MinioClient) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if err = notFound(err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
