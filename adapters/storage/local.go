// Package storage provides StorageAdapter implementations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// Local stores images on the local filesystem. Metadata goes to a
// "<name>.meta.json" side-car next to the image.
type Local struct {
	rootDir     string
	permissions os.FileMode
	chunkSize   int
	create      func(path string, perm os.FileMode) (io.WriteCloser, error)
}

func createFile(path string, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "local.init", fmt.Errorf("mkdir %s: %w", dir, err))
	}
	return &Local{rootDir: dir, permissions: perm, chunkSize: 32 * 1024, create: createFile}, nil
}

// WithChunkSize sets the write chunk size.
func (l *Local) WithChunkSize(n int) *Local {
	if n > 0 {
		l.chunkSize = n
	}
	return l
}

func (l *Local) absPath(key core.StorageKey) (string, error) {
	// Bucket maps to a subdirectory; Path is the filename.
	rel := filepath.Join(filepath.Clean("/"+key.Bucket), filepath.Clean("/"+key.Path))
	if rel == string(filepath.Separator) {
		return "", apperrors.New(apperrors.CategoryStorage, "local.path", fmt.Errorf("empty key %v", key))
	}
	return filepath.Join(l.rootDir, rel), nil
}

func (l *Local) Put(ctx context.Context, key core.StorageKey, r io.Reader, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}

	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.mkdir", err)
	}

	f, err := l.create(path, l.permissions)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.open", err)
	}
	if _, err = io.Copy(&utils.ChunkedWriter{W: f, ChunkSize: l.chunkSize}, r); err != nil {
		_ = f.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.copy", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.close", err)
	}

	// Persist metadata as a side-car JSON file.
	if len(meta) > 0 {
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.put.meta", err)
		}
		if err := os.WriteFile(path+".meta.json", data, l.permissions); err != nil {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.put.meta", err)
		}
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.get", fmt.Errorf("key not found: %v", key))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.open", err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	_ = os.Remove(path + ".meta.json")
	return nil
}

// Metadata reads the side-car written by Put. A missing side-car yields nil.
func (l *Local) Metadata(ctx context.Context, key core.StorageKey) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.metadata", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path + ".meta.json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.metadata", err)
	}
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.metadata", err)
	}
	return meta, nil
}

func (l *Local) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}
