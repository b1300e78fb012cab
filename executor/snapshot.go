package executor

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/trie"
	"github.com/spf13/afero"
)

// SnapshotState writes a fresh state db at destPath holding only what block h needs:
// its current hash, the hash and header of every block up to h, and the state
// reachable from h's state root.
func SnapshotState(ctx context.Context, statePath string, destPath string, h uint64) (trie.Stats, error) {
	src, err := Open(statePath)
	if err != nil {
		return trie.Stats{}, err
	}
	defer src.Close()
	dst, err := Create(destPath)
	if err != nil {
		return trie.Stats{}, err
	}
	defer dst.Close()
	return snapshot(ctx, src, dst, h)
}

func snapshot(ctx context.Context, src *DB, dst *DB, h uint64) (trie.Stats, error) {
	hash, err := src.BlockHash(h)
	if err != nil {
		return trie.Stats{}, err
	}
	header, err := src.HeaderByHash(hash)
	if err != nil {
		return trie.Stats{}, err
	}
	if err := dst.SetCurrentHash(hash); err != nil {
		return trie.Stats{}, err
	}

	for i := uint64(0); i <= h; i++ {
		if err := ctx.Err(); err != nil {
			return trie.Stats{}, err
		}
		bh, err := src.BlockHash(i)
		if err != nil {
			return trie.Stats{}, err
		}
		raw, err := src.RawHeaderByHash(bh)
		if err != nil {
			return trie.Stats{}, err
		}
		if err := dst.PutBlockHash(i, bh); err != nil {
			return trie.Stats{}, err
		}
		if err := dst.PutHeaderByHash(bh, raw); err != nil {
			return trie.Stats{}, err
		}
	}
	log.Debug(log.ExecutorMonitoring, "block indexes copied", "blocks", h+1)

	stats, err := trie.NewExtractor(src.StateStore(), dst.StateStore()).Extract(ctx, header.StateRoot)
	if err != nil {
		return stats, fmt.Errorf("state of block %d: %w", h, err)
	}
	log.Info(log.ExecutorMonitoring, "state snapshot written", "height", h, "stateRoot", header.StateRoot, "stats", stats.String())
	return stats, nil
}

// InstallState replaces the state db with a copy of the snapshot at snapshotPath.
func InstallState(fs afero.Fs, snapshotPath string, statePath string) error {
	if !common.DirExists(fs, snapshotPath) {
		return fmt.Errorf("state snapshot %s does not exist: %w", snapshotPath, operrors.ErrIO)
	}
	if err := fs.RemoveAll(statePath); err != nil {
		return fmt.Errorf("remove state db %s: %v: %w", statePath, err, operrors.ErrIO)
	}
	if err := common.CopyDir(fs, snapshotPath, statePath); err != nil {
		return fmt.Errorf("install state snapshot: %v: %w", err, operrors.ErrIO)
	}
	log.Info(log.ExecutorMonitoring, "state snapshot installed", "from", snapshotPath, "to", statePath)
	return nil
}
