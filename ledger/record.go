package ledger

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
)

// Record is a snapshot of the ledger scalars. It is passed by pointer through a
// rollback so every step sees the values earlier steps wrote; Version counts those writes.
type Record struct {
	Version      uint64
	Height       uint64
	Hash         []byte // nil on tiered backends
	Watermark    uint64
	HasWatermark bool
}

func (r *Record) String() string {
	s := fmt.Sprintf("v%d height=%d", r.Version, r.Height)
	if r.Hash != nil {
		s += " hash=" + common.Bytes2Hex(r.Hash)
	}
	if r.HasWatermark {
		s += fmt.Sprintf(" delete_height=%d", r.Watermark)
	}
	return s
}

func (r *Record) Clone() *Record {
	c := *r
	c.Hash = common.CopyBytes(r.Hash)
	return &c
}

// Snapshot reads every ledger scalar the backend keeps.
func (l *Ledger) Snapshot(ctx context.Context) (*Record, error) {
	rec := &Record{}
	var err error
	if rec.Height, err = l.ReadHeight(ctx); err != nil {
		return nil, err
	}
	if l.backend.Kind().HashChained() {
		if rec.Hash, err = l.ReadHash(ctx); err != nil {
			return nil, err
		}
	}
	if rec.Watermark, rec.HasWatermark, err = l.ReadWatermark(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetHeight writes height (and hash, when the backend keeps one) and records the write.
func (l *Ledger) SetHeight(ctx context.Context, rec *Record, h uint64, hash []byte) error {
	if err := l.WriteHeight(ctx, h); err != nil {
		return err
	}
	rec.Height = h
	rec.Version++
	if hash == nil {
		return nil
	}
	if err := l.WriteHash(ctx, hash); err != nil {
		return err
	}
	rec.Hash = common.CopyBytes(hash)
	rec.Version++
	return nil
}

// Clamp lowers the watermark to h and records the write, if any.
func (l *Ledger) Clamp(ctx context.Context, rec *Record, h uint64) error {
	changed, err := l.ClampWatermark(ctx, h)
	if err != nil {
		return err
	}
	if changed {
		rec.Watermark = h
		rec.Version++
	}
	return nil
}
