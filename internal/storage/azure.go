package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/assetpack/assetpack/internal/config"
)

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

func newAzureBlobStorage(ctx context.Context, cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var client *azblob.Client

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type for azure blob storage: %T", value)
		}

		shared, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid azure shared key: %w", err)
		}

		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, shared, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob storage client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain azure credentials: %w", err)
		}

		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob storage client: %w", err)
		}
	}

	return &AzureBlobStorage{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (s *AzureBlobStorage) Publish(ctx context.Context, name string, data []byte) error {
	ct := contentType(name)
	_, err := s.client.UploadBuffer(ctx, s.container, objectKey(s.prefix, name), data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to azure container %s: %w", name, s.container, err)
	}
	return nil
}

func (*AzureBlobStorage) Kind() string {
	return "azure"
}
