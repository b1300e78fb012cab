package rollback

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/executor"
	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/colorfulnotion/cloudop/utxo"
	"github.com/google/uuid"
)

type Options struct {
	// CleanConsensusData removes the consensus engines' WAL dirs.
	CleanConsensusData bool
	// StateSnapshotRoot is a backup root; when set the executor state is replaced by
	// the snapshot taken at the target height instead of being rewound in place.
	StateSnapshotRoot string
	// Resume accepts target == current height so an interrupted run can be finished.
	Resume bool
}

// Report describes one rollback run.
type Report struct {
	RunID          string
	Target         uint64
	Before         *ledger.Record
	After          *ledger.Record
	Locks          []utxo.Outcome
	StateInstalled bool
}

// Rollback rewinds the node to target. The steps run in a fixed order and each is
// idempotent for a given target, so a failed run can be repeated with Resume.
func (c *Coordinator) Rollback(ctx context.Context, target uint64, opts Options) (*Report, error) {
	rec, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if target > rec.Height || (target == rec.Height && !opts.Resume) {
		return nil, outOfRange("rollback height %d must be below current height %d", target, rec.Height)
	}
	var snapshot string
	if opts.StateSnapshotRoot != "" {
		if snapshot, err = c.checkSnapshot(opts.StateSnapshotRoot, target); err != nil {
			return nil, err
		}
	}
	report := &Report{RunID: uuid.NewString(), Target: target, Before: rec.Clone()}
	log.Info(log.RollbackMonitoring, "rollback started", "run", report.RunID, "target", target, "ledger", rec.String())

	if err := c.cleanWals(opts.CleanConsensusData); err != nil {
		return nil, err
	}

	if report.Locks, err = c.rewindLedger(ctx, c.ledger, rec, target); err != nil {
		return nil, err
	}

	if snapshot != "" {
		if err := executor.InstallState(c.fs, snapshot, c.cfg.Executor.StatePath()); err != nil {
			return nil, err
		}
		if err := executor.RollbackChain(c.cfg.Executor.ChainPath(), target); err != nil {
			return nil, err
		}
		report.StateInstalled = true
	} else if err := executor.Rollback(c.cfg.Executor.DbPath, target); err != nil {
		return nil, err
	}

	report.After = rec
	log.Info(log.RollbackMonitoring, "rollback done", "run", report.RunID, "ledger", rec.String(), "locks", len(report.Locks))
	return report, nil
}

// cleanWals removes the consensus WALs when asked. The controller WAL of a
// hash-chained node always goes, since it replays blocks above the new height.
func (c *Coordinator) cleanWals(consensus bool) error {
	var dirs []string
	if consensus {
		dirs = append(dirs, c.cfg.ConsensusWalPaths()...)
	}
	if c.backend.Kind().HashChained() {
		dirs = append(dirs, c.cfg.Controller.WalPath)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := c.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %v: %w", dir, err, operrors.ErrIO)
		}
		log.Info(log.RollbackMonitoring, "wal removed", "dir", dir)
	}
	return nil
}

func snapshotDir(root string, h uint64) string {
	return filepath.Join(root, strconv.FormatUint(h, 10))
}

// checkSnapshot returns the state snapshot for target under a backup root. A backup
// without a manifest is accepted as long as its state dir exists.
func (c *Coordinator) checkSnapshot(root string, target uint64) (string, error) {
	layout := newBackupLayout(root, target)
	m, ok, err := ReadManifest(c.fs, layout.dir)
	if err != nil {
		return "", err
	}
	if ok && m.Height != target {
		return "", outOfRange("snapshot at %s was taken at height %d, not %d", layout.dir, m.Height, target)
	}
	if !common.DirExists(c.fs, layout.statedb) {
		return "", fmt.Errorf("state snapshot %s does not exist: %w", layout.statedb, operrors.ErrIO)
	}
	return layout.statedb, nil
}

// CloudRollback moves the remote tier's backup pointer so the next backup restarts at
// backupHeight+1.
func (c *Coordinator) CloudRollback(ctx context.Context, backupHeight uint64) error {
	if c.backend.Kind() != storage.KindTiered {
		return fmt.Errorf("cloud rollback needs a tiered backend, have %s: %w", c.backend.Kind(), operrors.ErrBackendMismatch)
	}
	p, ok, err := c.ledger.ReadBackupPointer(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn(log.RollbackMonitoring, "backup hasn't started")
		return nil
	}
	if backupHeight >= p.Height {
		return outOfRange("backup height %d must be below the backed up height %d", backupHeight, p.Height)
	}
	w, hasW, err := c.ledger.ReadWatermark(ctx)
	if err != nil {
		return err
	}
	if hasW && backupHeight < w {
		return outOfRange("backup height %d is below delete height %d", backupHeight, w)
	}
	next := ledger.BackupPointer{Height: backupHeight + 1}
	if err := c.ledger.WriteBackupPointer(ctx, next); err != nil {
		return err
	}
	log.Info(log.RollbackMonitoring, "cloud rollback done", "old", p.Height, "new", next.Height)
	return nil
}
