package storage

import (
	"context"

	"github.com/colorfulnotion/cloudop/log"
)

// LocalBackend is the hash-chained chain store: a single LevelDB addressed by
// composite keys.
type LocalBackend struct {
	store   *PersistenceStore
	hashLen int
}

// OpenLocal opens the local store at path. An empty path opens an in-memory store.
func OpenLocal(path string, hashLen int) (*LocalBackend, error) {
	if err := checkHashLen(hashLen); err != nil {
		return nil, err
	}
	store, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	log.Debug(log.StorageMonitoring, "opened local backend", "path", path)
	return &LocalBackend{store: store, hashLen: hashLen}, nil
}

func (b *LocalBackend) Kind() Kind { return KindLocal }

func (b *LocalBackend) Load(_ context.Context, region Region, key []byte) ([]byte, error) {
	return b.store.Get(CompositeKey(region, key))
}

func (b *LocalBackend) Store(_ context.Context, region Region, key []byte, value []byte) error {
	return b.store.Put(CompositeKey(region, key), value)
}

func (b *LocalBackend) Delete(_ context.Context, region Region, key []byte) error {
	return b.store.Delete(CompositeKey(region, key))
}

func (b *LocalBackend) LoadFullBlock(ctx context.Context, height uint64) ([]byte, error) {
	return loadFullBlock(ctx, b, height)
}

func (b *LocalBackend) StoreAllBlockData(ctx context.Context, height uint64, hashAndBlock []byte) error {
	return storeAllBlockData(ctx, b, b.hashLen, height, hashAndBlock)
}

func (b *LocalBackend) Close() error {
	return b.store.Close()
}
