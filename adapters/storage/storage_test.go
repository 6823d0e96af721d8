package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/rasterpipe/adapters/storage"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ── Local ─────────────────────────────────────────────────────────────────────

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := storage.NewLocal(dir, 0o600)
	require.NoError(t, err)
	l.WithChunkSize(3)

	key := core.StorageKey{Bucket: "thumbs", Path: "a/b.jpg"}
	meta := map[string]string{"content-type": "image/jpeg", "orientation": "6"}
	require.NoError(t, l.Put(ctx, key, bytes.NewReader([]byte("jpeg-bytes")), meta))

	_, err = os.Stat(filepath.Join(dir, "thumbs", "a", "b.jpg"))
	require.NoError(t, err)

	ok, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := l.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	got, err := l.Metadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	require.NoError(t, l.Delete(ctx, key))
	ok, err = l.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = l.Metadata(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLocal_KeysStayUnderRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := storage.NewLocal(filepath.Join(dir, "root"), 0)
	require.NoError(t, err)

	require.NoError(t, l.Put(ctx, core.StorageKey{Path: "../../escape.png"}, bytes.NewReader([]byte("x")), nil))
	_, err = os.Stat(filepath.Join(dir, "root", "escape.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	assert.True(t, os.IsNotExist(err))

	err = l.Put(ctx, core.StorageKey{}, bytes.NewReader(nil), nil)
	assert.Equal(t, apperrors.CategoryStorage, apperrors.CategoryOf(err))
}

func TestLocal_Errors(t *testing.T) {
	l, err := storage.NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = l.Get(context.Background(), core.StorageKey{Path: "missing.jpg"})
	assert.Equal(t, apperrors.CategoryStorage, apperrors.CategoryOf(err))
	assert.False(t, apperrors.IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Put(ctx, core.StorageKey{Path: "x.jpg"}, bytes.NewReader(nil), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingClose struct {
	io.Writer
	err error
}

func (f failingClose) Close() error { return f.err }

func TestLocal_PutReportsCloseError(t *testing.T) {
	l, err := storage.NewLocal(t.TempDir(), 0)
	require.NoError(t, err)
	flush := errors.New("disk full")
	var written bytes.Buffer
	l.SetCreate(func(string, os.FileMode) (io.WriteCloser, error) {
		return failingClose{Writer: &written, err: flush}, nil
	})

	err = l.Put(context.Background(), core.StorageKey{Path: "x.jpg"}, bytes.NewReader([]byte("pixels")), nil)
	require.ErrorIs(t, err, flush)
	assert.Equal(t, apperrors.CategoryStorage, apperrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "local.put.close")
	assert.Equal(t, "pixels", written.String())
}

// ── S3 ────────────────────────────────────────────────────────────────────────

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	failPut error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64, meta map[string]string) error {
	if f.failPut != nil {
		return f.failPut
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	f.meta[bucket+"/"+key] = meta
	return nil
}

func (f *fakeS3) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeS3) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeS3) HeadObject(_ context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok, nil
}

func TestS3_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s, err := storage.NewS3(fake, "images")
	require.NoError(t, err)

	key := core.StorageKey{Path: "out/1.webp"}
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("webp")), map[string]string{"width": "320"}))
	assert.Contains(t, fake.objects, "images/out/1.webp")
	assert.Equal(t, "320", fake.meta["images/out/1.webp"]["width"])

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "webp", string(data))

	require.NoError(t, s.Put(ctx, core.StorageKey{Bucket: "other", Path: "x"}, bytes.NewReader(nil), nil))
	assert.Contains(t, fake.objects, "other/x")

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s, err := storage.NewS3(fake, "images")
	require.NoError(t, err)

	_, err = s.Get(ctx, core.StorageKey{Path: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, apperrors.IsRetryable(err))

	fake.failPut = errors.New("connection reset")
	err = s.Put(ctx, core.StorageKey{Path: "x"}, bytes.NewReader(nil), nil)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.CategoryTransient, apperrors.CategoryOf(err))
}

func TestNewS3_NilClient(t *testing.T) {
	_, err := storage.NewS3(nil, "b")
	assert.Error(t, err)
}

// ── Open ──────────────────────────────────────────────────────────────────────

func TestOpen(t *testing.T) {
	cfg := config.Default()
	s, err := storage.Open(cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.Storage = config.StorageLocal
	cfg.Local.RootDir = t.TempDir()
	s, err = storage.Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.Local{}, s)

	cfg.Storage = config.StorageS3
	cfg.S3 = config.S3Config{Bucket: "images", Endpoint: "localhost:9000"}
	s, err = storage.Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.S3{}, s)

	cfg.Storage = "ftp"
	_, err = storage.Open(cfg)
	assert.Equal(t, apperrors.CategoryConfig, apperrors.CategoryOf(err))
}
