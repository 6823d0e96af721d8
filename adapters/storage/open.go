package storage

import (
	"fmt"
	"os"

	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// Open builds the adapter selected by cfg.Storage. It returns nil for
// StorageNone.
func Open(cfg config.Config) (core.StorageAdapter, error) {
	switch cfg.Storage {
	case "", config.StorageNone:
		return nil, nil
	case config.StorageLocal:
		l, err := NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
		if err != nil {
			return nil, err
		}
		return l.WithChunkSize(cfg.ChunkSize), nil
	case config.StorageS3:
		client, err := NewMinioClient(cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket)
	}
	return nil, apperrors.New(apperrors.CategoryConfig, "storage.open",
		fmt.Errorf("unknown storage backend %q", cfg.Storage))
}
