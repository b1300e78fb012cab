package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultL1Capacity = 10000

// TieredOptions configures a tiered backend.
type TieredOptions struct {
	L1Capacity int
	HashLen    int
	// Remote is the optional object tier.
	Remote ObjectStore
	// FS overrides the filesystem of the L2 tier; tests pass vfs.NewMem().
	FS vfs.FS
}

// TieredBackend layers an in-memory LRU (L1) over a pebble store (L2) over an optional
// remote object store. Keys at every tier are hex real keys.
type TieredBackend struct {
	l1      *lru.Cache[string, []byte]
	l2      *pebble.DB
	remote  ObjectStore
	hashLen int
	dir     string
}

// OpenTiered opens the tiered store rooted at dir; the L2 tier lives in dir itself.
func OpenTiered(dir string, opts TieredOptions) (*TieredBackend, error) {
	if err := checkHashLen(opts.HashLen); err != nil {
		return nil, err
	}
	capacity := opts.L1Capacity
	if capacity <= 0 {
		capacity = defaultL1Capacity
	}
	l1, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %v: %w", err, operrors.ErrConfig)
	}
	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	l2, err := pebble.Open(filepath.Clean(dir), popts)
	if err != nil {
		return nil, fmt.Errorf("open l2 tier at %s: %v: %w", dir, err, operrors.ErrIO)
	}
	log.Debug(log.StorageMonitoring, "opened tiered backend", "dir", dir, "l1", capacity, "remote", opts.Remote != nil)
	return &TieredBackend{l1: l1, l2: l2, remote: opts.Remote, hashLen: opts.HashLen, dir: dir}, nil
}

func (b *TieredBackend) Kind() Kind { return KindTiered }

// Remote exposes the object tier, nil when none is configured.
func (b *TieredBackend) Remote() ObjectStore { return b.remote }

// Load reads through every tier.
func (b *TieredBackend) Load(ctx context.Context, region Region, key []byte) ([]byte, error) {
	return b.LoadTier(ctx, region, key, true)
}

// LoadTier reads L1 then L2 and, when consistent is set, the remote tier. A remote hit
// is written back to L2 and L1.
func (b *TieredBackend) LoadTier(ctx context.Context, region Region, key []byte, consistent bool) ([]byte, error) {
	rk := RealKey(region, key)
	if v, ok := b.l1.Get(rk); ok {
		return append([]byte(nil), v...), nil
	}
	v, err := b.getL2(rk)
	if err == nil {
		b.l1.Add(rk, v)
		return append([]byte(nil), v...), nil
	}
	if !errors.Is(err, ErrNotFound) || !consistent || b.remote == nil {
		return nil, err
	}
	v, err = b.remote.Read(ctx, rk)
	if err != nil {
		return nil, err
	}
	if err := b.putL2(rk, v); err != nil {
		return nil, err
	}
	b.l1.Add(rk, v)
	return append([]byte(nil), v...), nil
}

func (b *TieredBackend) Store(_ context.Context, region Region, key []byte, value []byte) error {
	rk := RealKey(region, key)
	v := append([]byte(nil), value...)
	if err := b.putL2(rk, v); err != nil {
		return err
	}
	b.l1.Add(rk, v)
	return nil
}

// Delete removes the key from L1 and L2 only. A copy held by the remote tier becomes
// visible again to consistent loads.
func (b *TieredBackend) Delete(_ context.Context, region Region, key []byte) error {
	rk := RealKey(region, key)
	b.l1.Remove(rk)
	if err := b.l2.Delete([]byte(rk), pebble.Sync); err != nil {
		return fmt.Errorf("l2 delete %s: %v: %w", rk, err, operrors.ErrIO)
	}
	return nil
}

func (b *TieredBackend) LoadFullBlock(ctx context.Context, height uint64) ([]byte, error) {
	return loadFullBlock(ctx, b, height)
}

func (b *TieredBackend) StoreAllBlockData(ctx context.Context, height uint64, hashAndBlock []byte) error {
	return storeAllBlockData(ctx, b, b.hashLen, height, hashAndBlock)
}

func (b *TieredBackend) Close() error {
	b.l1.Purge()
	if err := b.l2.Close(); err != nil {
		return fmt.Errorf("close l2 tier %s: %v: %w", b.dir, err, operrors.ErrIO)
	}
	return nil
}

func (b *TieredBackend) getL2(rk string) ([]byte, error) {
	v, closer, err := b.l2.Get([]byte(rk))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("key %s: %w", rk, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("l2 get %s: %v: %w", rk, err, operrors.ErrIO)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (b *TieredBackend) putL2(rk string, v []byte) error {
	if err := b.l2.Set([]byte(rk), v, pebble.Sync); err != nil {
		return fmt.Errorf("l2 set %s: %v: %w", rk, err, operrors.ErrIO)
	}
	return nil
}
