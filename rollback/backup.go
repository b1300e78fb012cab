package rollback

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/colorfulnotion/cloudop/chain"
	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/executor"
	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/google/uuid"
)

const replayLogInterval = 1000

// backupLayout names the dirs of one backup at <root>/<h>.
type backupLayout struct {
	dir       string
	dataDir   string
	statedb   string
	nosql     string
	chainData string
}

func newBackupLayout(root string, h uint64) backupLayout {
	dir := snapshotDir(root, h)
	data := filepath.Join(dir, "data")
	return backupLayout{
		dir:       dir,
		dataDir:   data,
		statedb:   executor.StatePath(data),
		nosql:     executor.ChainPath(data),
		chainData: filepath.Join(dir, "chain_data"),
	}
}

// Backup writes a self-contained copy of the node at height (the current height when
// nil) under <root>/<height>. In copy mode the live dirs are copied and the copies are
// rewound; in export mode the state is extracted and the chain is replayed into a
// fresh tiered store.
func (c *Coordinator) Backup(ctx context.Context, root string, height *uint64, exportData bool) (*Manifest, error) {
	current, err := c.ledger.ReadHeight(ctx)
	if err != nil {
		return nil, err
	}
	h := current
	if height != nil {
		h = *height
	}
	if h > current {
		return nil, outOfRange("backup height %d is above current height %d", h, current)
	}
	layout := newBackupLayout(root, h)
	m := c.newManifest(ModeCopy, 0, h)
	if exportData {
		m.Mode = ModeExport
	}
	log.Info(log.BackupMonitoring, "backup started", "run", m.RunID, "height", h, "current", current, "mode", m.Mode, "dir", layout.dir)

	if exportData {
		if _, err := executor.SnapshotState(ctx, c.cfg.Executor.StatePath(), layout.statedb, h); err != nil {
			return nil, err
		}
	} else if err := c.copyDir(c.cfg.Executor.StatePath(), layout.statedb); err != nil {
		return nil, err
	}
	if err := c.copyDir(c.cfg.Executor.ChainPath(), layout.nosql); err != nil {
		return nil, err
	}

	if exportData {
		if err := c.replayInto(ctx, layout.chainData, 0, h); err != nil {
			return nil, err
		}
	} else {
		storagePath, err := c.cfg.StoragePath()
		if err != nil {
			return nil, err
		}
		if err := c.copyDir(storagePath, layout.chainData); err != nil {
			return nil, err
		}
		if err := c.rewindCopy(ctx, layout, h); err != nil {
			return nil, err
		}
	}

	if err := WriteManifest(c.fs, layout.dir, m); err != nil {
		return nil, err
	}
	log.Info(log.BackupMonitoring, "backup done", "run", m.RunID, "dir", layout.dir)
	return m, nil
}

// Export writes the state at end and the blocks in [begin, end] under <root>/<end>.
func (c *Coordinator) Export(ctx context.Context, root string, begin uint64, end uint64) (*Manifest, error) {
	current, err := c.ledger.ReadHeight(ctx)
	if err != nil {
		return nil, err
	}
	if begin > end || end > current {
		return nil, outOfRange("export range [%d, %d] with current height %d", begin, end, current)
	}
	layout := newBackupLayout(root, end)
	m := c.newManifest(ModeExport, begin, end)
	log.Info(log.BackupMonitoring, "export started", "run", m.RunID, "begin", begin, "end", end, "dir", layout.dir)

	if _, err := executor.SnapshotState(ctx, c.cfg.Executor.StatePath(), layout.statedb, end); err != nil {
		return nil, err
	}
	if err := c.copyDir(c.cfg.Executor.ChainPath(), layout.nosql); err != nil {
		return nil, err
	}
	if err := c.replayInto(ctx, layout.chainData, begin, end); err != nil {
		return nil, err
	}
	if err := WriteManifest(c.fs, layout.dir, m); err != nil {
		return nil, err
	}
	log.Info(log.BackupMonitoring, "export done", "run", m.RunID, "dir", layout.dir)
	return m, nil
}

func (c *Coordinator) newManifest(mode string, begin uint64, h uint64) *Manifest {
	return &Manifest{
		RunID:   uuid.NewString(),
		Mode:    mode,
		Height:  h,
		Begin:   begin,
		Storage: c.backend.Kind().String(),
		Schema:  c.schema.Name,
		Created: time.Now().UTC(),
	}
}

func (c *Coordinator) copyDir(src string, dst string) error {
	if err := common.CopyDir(c.fs, src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %v: %w", src, dst, err, operrors.ErrIO)
	}
	log.Info(log.BackupMonitoring, "copied", "from", src, "to", dst)
	return nil
}

// openCopy opens a copied chain store as the same kind as the live one, without any
// remote tier.
func (c *Coordinator) openCopy(dir string) (storage.Backend, error) {
	if c.backend.Kind() == storage.KindLocal {
		return storage.OpenLocal(dir, int(c.cfg.Controller.HashLen))
	}
	return storage.OpenTiered(dir, storage.TieredOptions{HashLen: int(c.cfg.Controller.HashLen)})
}

// rewindCopy rolls the copied stores back to h. A copy already at h is left alone.
func (c *Coordinator) rewindCopy(ctx context.Context, layout backupLayout, h uint64) error {
	backend, err := c.openCopy(layout.chainData)
	if err != nil {
		return err
	}
	defer backend.Close()

	l := ledger.New(backend)
	rec, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}
	if h >= rec.Height {
		log.Info(log.BackupMonitoring, "copy already at backup height", "height", rec.Height)
		return nil
	}
	if _, err := c.rewindLedger(ctx, l, rec, h); err != nil {
		return err
	}
	return executor.Rollback(layout.dataDir, h)
}

func (c *Coordinator) replayInto(ctx context.Context, dir string, begin uint64, end uint64) error {
	dst, err := storage.OpenTiered(dir, storage.TieredOptions{HashLen: int(c.cfg.Controller.HashLen)})
	if err != nil {
		return err
	}
	defer dst.Close()
	return Replay(ctx, c.backend, dst, begin, end)
}

// Replay copies blocks [begin, end] from src to dst through StoreAllBlockData and
// re-derives the lock slots from the utxo transactions they carry.
func Replay(ctx context.Context, src storage.Backend, dst storage.Backend, begin uint64, end uint64) error {
	for h := begin; h <= end; h++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		hk := storage.HeightKey(h)
		hash, err := src.Load(ctx, storage.BlockHash, hk)
		if err != nil {
			return fmt.Errorf("hash of block %d: %w", h, err)
		}
		raw, err := src.LoadFullBlock(ctx, h)
		if err != nil {
			return err
		}
		data := make([]byte, 0, len(hash)+len(raw))
		data = append(append(data, hash...), raw...)
		if err := dst.StoreAllBlockData(ctx, h, data); err != nil {
			return err
		}

		blk, err := chain.DecodeBlock(raw)
		if err != nil {
			return err
		}
		for _, tx := range blk.Body {
			if !tx.IsUtxo() {
				continue
			}
			lockID := tx.Utxo.Transaction.LockId
			if err := dst.Store(ctx, storage.Global, storage.HeightKey(lockID), tx.Utxo.TransactionHash); err != nil {
				return err
			}
		}
		if h%replayLogInterval == 0 || h == end {
			log.Info(log.BackupMonitoring, "replaying blocks", "height", h, "end", end)
		}
		if h == end {
			break
		}
	}
	return nil
}
