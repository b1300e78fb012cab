package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/cloudop/chain"
	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
)

// Ledger reads and writes the chain store's height, hash and delete watermark. It
// never infers a value it cannot read.
type Ledger struct {
	backend storage.Backend
}

func New(backend storage.Backend) *Ledger {
	return &Ledger{backend: backend}
}

func (l *Ledger) Backend() storage.Backend { return l.backend }

func scalarKey(k uint64) []byte { return storage.HeightKey(k) }

func (l *Ledger) readScalar(ctx context.Context, k uint64, name string) (uint64, error) {
	raw, err := l.backend.Load(ctx, storage.Global, scalarKey(k))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := common.BytesToUint64(raw)
	if err != nil {
		return 0, fmt.Errorf("read %s: %v: %w", name, err, operrors.ErrIO)
	}
	return v, nil
}

func (l *Ledger) ReadHeight(ctx context.Context) (uint64, error) {
	return l.readScalar(ctx, storage.KeyCurrentHeight, "current height")
}

func (l *Ledger) WriteHeight(ctx context.Context, h uint64) error {
	if err := l.backend.Store(ctx, storage.Global, scalarKey(storage.KeyCurrentHeight), common.Uint64ToBytes(h)); err != nil {
		return fmt.Errorf("write current height %d: %w", h, err)
	}
	log.Info(log.LedgerMonitoring, "current height written", "height", h)
	return nil
}

func (l *Ledger) checkHashChained() error {
	if !l.backend.Kind().HashChained() {
		return fmt.Errorf("%s backend keeps no current hash: %w", l.backend.Kind(), operrors.ErrBackendMismatch)
	}
	return nil
}

func (l *Ledger) ReadHash(ctx context.Context) ([]byte, error) {
	if err := l.checkHashChained(); err != nil {
		return nil, err
	}
	hash, err := l.backend.Load(ctx, storage.Global, scalarKey(storage.KeyCurrentHash))
	if err != nil {
		return nil, fmt.Errorf("read current hash: %w", err)
	}
	return hash, nil
}

func (l *Ledger) WriteHash(ctx context.Context, hash []byte) error {
	if err := l.checkHashChained(); err != nil {
		return err
	}
	if err := l.backend.Store(ctx, storage.Global, scalarKey(storage.KeyCurrentHash), hash); err != nil {
		return fmt.Errorf("write current hash: %w", err)
	}
	log.Info(log.LedgerMonitoring, "current hash written", "hash", common.Bytes2Hex(hash))
	return nil
}

// DeriveHashFromSuccessor returns the hash of block h as recorded in the prevhash of
// block h+1. Stored headers are trusted.
func (l *Ledger) DeriveHashFromSuccessor(ctx context.Context, h uint64) ([]byte, error) {
	raw, err := l.backend.Load(ctx, storage.CompactBlock, storage.HeightKey(h+1))
	if err != nil {
		return nil, fmt.Errorf("compact block %d: %w", h+1, err)
	}
	cb, err := chain.DecodeCompactBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("compact block %d: %w", h+1, err)
	}
	if cb.Header == nil || len(cb.Header.Prevhash) == 0 {
		return nil, fmt.Errorf("compact block %d has no prevhash: %w", h+1, operrors.ErrIO)
	}
	return cb.Header.Prevhash, nil
}

// ReadWatermark returns the delete watermark; ok is false when it was never written.
func (l *Ledger) ReadWatermark(ctx context.Context) (uint64, bool, error) {
	w, err := l.readScalar(ctx, storage.KeyDeleteHeight, "delete height")
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return w, true, nil
}

// ClampWatermark lowers the watermark to h. It writes only when the stored value is
// above h and reports whether it did.
func (l *Ledger) ClampWatermark(ctx context.Context, h uint64) (bool, error) {
	w, ok, err := l.ReadWatermark(ctx)
	if err != nil {
		return false, err
	}
	if !ok || w <= h {
		log.Debug(log.LedgerMonitoring, "delete height unchanged", "watermark", w, "present", ok, "target", h)
		return false, nil
	}
	if err := l.backend.Store(ctx, storage.Global, scalarKey(storage.KeyDeleteHeight), common.Uint64ToBytes(h)); err != nil {
		return false, fmt.Errorf("write delete height %d: %w", h, err)
	}
	log.Info(log.LedgerMonitoring, "delete height clamped", "old", w, "new", h)
	return true, nil
}
