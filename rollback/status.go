package rollback

import (
	"context"
	"errors"

	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
)

type LockSlot struct {
	LockID  uint64
	Value   []byte
	Present bool
}

type Status struct {
	Kind   storage.Kind
	Record *ledger.Record
	Locks  []LockSlot
	Backup *ledger.BackupPointer
}

// Status reads the ledger, every lock slot and, on tiered nodes with a remote tier,
// the backup pointer. It writes nothing.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	rec, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{Kind: c.backend.Kind(), Record: rec}
	for _, id := range c.schema.LockIDs() {
		v, err := c.backend.Load(ctx, storage.Global, storage.HeightKey(id))
		if errors.Is(err, storage.ErrNotFound) {
			st.Locks = append(st.Locks, LockSlot{LockID: id})
			continue
		}
		if err != nil {
			return nil, err
		}
		st.Locks = append(st.Locks, LockSlot{LockID: id, Value: v, Present: true})
	}
	if c.backend.Kind() == storage.KindTiered {
		p, ok, err := c.ledger.ReadBackupPointer(ctx)
		switch {
		case errors.Is(err, operrors.ErrConfig):
			// no remote tier configured
		case err != nil:
			return nil, err
		case ok:
			st.Backup = &p
		}
	}
	return st, nil
}
