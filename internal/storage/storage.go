// Package storage mirrors built artifacts to object storage so they can be
// served from a CDN or shared between hosts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/assetpack/assetpack/internal/config"
)

type Storage interface {
	Publish(ctx context.Context, name string, data []byte) error
	Kind() string
}

// New returns a storage publishing to every backend configured. It returns
// nil when none is.
func New(ctx context.Context, cfg *config.ObjectStorage) (Storage, error) {
	if cfg == nil {
		return nil, nil
	}

	var all multi

	if cfg.AmazonS3 != nil {
		s, err := newAmazonS3(ctx, cfg.AmazonS3)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}

	if cfg.GCPCloudStorage != nil {
		s, err := newGCPCloudStorage(ctx, cfg.GCPCloudStorage)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}

	if cfg.AzureBlobStorage != nil {
		s, err := newAzureBlobStorage(ctx, cfg.AzureBlobStorage)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}

	if cfg.FileSystemStorage != nil {
		s, err := newFileSystemStorage(cfg.FileSystemStorage)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}

	switch len(all) {
	case 0:
		return nil, nil
	case 1:
		return all[0], nil
	default:
		return all, nil
	}
}

type multi []Storage

func (m multi) Publish(ctx context.Context, name string, data []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, name, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

func (m multi) Kind() string {
	kinds := make([]string, 0, len(m))
	for _, s := range m {
		kinds = append(kinds, s.Kind())
	}
	return strings.Join(kinds, "+")
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css"
	default:
		return "application/octet-stream"
	}
}
