package storage

import (
	"context"
	"fmt"

	"github.com/assetpack/assetpack/internal/cache"
	"github.com/assetpack/assetpack/internal/config"
)

// FileSystemStorage copies artifacts to another directory, typically a
// shared mount.
type FileSystemStorage struct {
	store *cache.Store
}

func newFileSystemStorage(cfg *config.FileSystemStorage) (*FileSystemStorage, error) {
	store, err := cache.New(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("filesystem storage: %w", err)
	}
	return &FileSystemStorage{store: store}, nil
}

func (s *FileSystemStorage) Publish(_ context.Context, name string, data []byte) error {
	return s.store.Write(name, data, true)
}

func (*FileSystemStorage) Kind() string {
	return "filesystem"
}
