package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/colorfulnotion/cloudop/config"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/spf13/afero"
)

// ObjectStore is the remote tier of a tiered backend. Paths are hex real keys.
type ObjectStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// FsObjectStore keeps one file per object under root.
type FsObjectStore struct {
	fs   afero.Fs
	root string
}

func NewFsObjectStore(fsys afero.Fs, root string) (*FsObjectStore, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root %s: %v: %w", root, err, operrors.ErrIO)
	}
	return &FsObjectStore{fs: fsys, root: root}, nil
}

// NewObjectStore builds the remote tier described by cfg. An empty service type means
// the tiered backend runs without a remote tier.
func NewObjectStore(fsys afero.Fs, cfg config.CloudStorageConfig) (ObjectStore, error) {
	switch cfg.ServiceType {
	case "":
		return nil, nil
	case "fs":
		if cfg.Root == "" {
			return nil, fmt.Errorf("cloud_storage root is empty: %w", operrors.ErrConfig)
		}
		store, err := NewFsObjectStore(fsys, cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "azblob":
		store, err := NewAzblobObjectStore(cfg.Endpoint, cfg.Container)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cloud storage service type %q: %w", cfg.ServiceType, operrors.ErrConfig)
	}
}

func (s *FsObjectStore) file(path string) string {
	return filepath.Join(s.root, path)
}

func (s *FsObjectStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.file(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %v: %w", path, err, operrors.ErrIO)
	}
	return data, nil
}

func (s *FsObjectStore) Write(_ context.Context, path string, data []byte) error {
	if err := afero.WriteFile(s.fs, s.file(path), data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %v: %w", path, err, operrors.ErrIO)
	}
	return nil
}
