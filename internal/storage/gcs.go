package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/assetpack/assetpack/internal/config"
)

type GCPCloudStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var opts []option.ClientOption

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type for gcp cloud storage: %T", value)
		}

		if creds.Credentials != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		} else {
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcp cloud storage client: %w", err)
	}

	return &GCPCloudStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCPCloudStorage) Publish(ctx context.Context, name string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(objectKey(s.prefix, name)).NewWriter(ctx)
	w.ContentType = contentType(name)

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s to gs://%s: %w", name, s.bucket, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload %s to gs://%s: %w", name, s.bucket, err)
	}
	return nil
}

func (*GCPCloudStorage) Kind() string {
	return "gcs"
}
