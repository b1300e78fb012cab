package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/colorfulnotion/cloudop/operrors"
)

// AzblobObjectStore keeps one blob per object in a single container. The endpoint is
// expected to carry a SAS token when the container is not public.
type AzblobObjectStore struct {
	client    *azblob.Client
	container string
}

func NewAzblobObjectStore(endpoint string, container string) (*AzblobObjectStore, error) {
	if endpoint == "" || container == "" {
		return nil, fmt.Errorf("azblob needs endpoint and container: %w", operrors.ErrConfig)
	}
	client, err := azblob.NewClientWithNoCredential(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob client for %s: %v: %w", endpoint, err, operrors.ErrConfig)
	}
	return &AzblobObjectStore{client: client, container: container}, nil
}

func (s *AzblobObjectStore) Read(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("blob %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download blob %s: %v: %w", path, err, operrors.ErrIO)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %v: %w", path, err, operrors.ErrIO)
	}
	return data, nil
}

func (s *AzblobObjectStore) Write(ctx context.Context, path string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, path, data, nil); err != nil {
		return fmt.Errorf("upload blob %s: %v: %w", path, err, operrors.ErrIO)
	}
	return nil
}
