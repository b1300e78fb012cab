package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
)

// BackupPointer is the remote tier's progress marker: the next height to back up and
// the index inside it.
type BackupPointer struct {
	Height uint64
	Index  uint32
}

func (p BackupPointer) Encode() []byte {
	out := make([]byte, 0, 12)
	out = append(out, common.Uint64ToBytes(p.Height)...)
	return append(out, common.Uint32ToBytes(p.Index)...)
}

// DecodeBackupPointer reads the first 12 bytes; any trailer is ignored.
func DecodeBackupPointer(data []byte) (BackupPointer, error) {
	if len(data) < 12 {
		return BackupPointer{}, fmt.Errorf("backup pointer is %d bytes, want at least 12: %w", len(data), operrors.ErrIO)
	}
	h, _ := common.BytesToUint64(data[:8])
	i, _ := common.BytesToUint32(data[8:12])
	return BackupPointer{Height: h, Index: i}, nil
}

type remoteTier interface {
	Remote() storage.ObjectStore
}

func (l *Ledger) remote() (storage.ObjectStore, error) {
	rt, ok := l.backend.(remoteTier)
	if !ok || l.backend.Kind() != storage.KindTiered {
		return nil, fmt.Errorf("%s backend has no remote tier: %w", l.backend.Kind(), operrors.ErrBackendMismatch)
	}
	remote := rt.Remote()
	if remote == nil {
		return nil, fmt.Errorf("no cloud storage configured: %w", operrors.ErrConfig)
	}
	return remote, nil
}

func backupPointerPath() string {
	return storage.RealKey(storage.Global, storage.HeightKey(storage.KeyCurrentHash))
}

// ReadBackupPointer reads the pointer from the remote tier; ok is false before the first backup.
func (l *Ledger) ReadBackupPointer(ctx context.Context) (BackupPointer, bool, error) {
	remote, err := l.remote()
	if err != nil {
		return BackupPointer{}, false, err
	}
	raw, err := remote.Read(ctx, backupPointerPath())
	if errors.Is(err, storage.ErrNotFound) {
		return BackupPointer{}, false, nil
	}
	if err != nil {
		return BackupPointer{}, false, fmt.Errorf("read backup pointer: %w", err)
	}
	p, err := DecodeBackupPointer(raw)
	if err != nil {
		return BackupPointer{}, false, err
	}
	return p, true, nil
}

func (l *Ledger) WriteBackupPointer(ctx context.Context, p BackupPointer) error {
	remote, err := l.remote()
	if err != nil {
		return err
	}
	if err := remote.Write(ctx, backupPointerPath(), p.Encode()); err != nil {
		return fmt.Errorf("write backup pointer: %w", err)
	}
	log.Info(log.LedgerMonitoring, "backup pointer written", "height", p.Height, "index", p.Index)
	return nil
}
