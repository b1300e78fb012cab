package rollback

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/cloudop/executor"
	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLocalCopy(t *testing.T, dir string) *storage.LocalBackend {
	b, err := storage.OpenLocal(dir, 32)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func openTieredCopy(t *testing.T, dir string) *storage.TieredBackend {
	b, err := storage.OpenTiered(dir, storage.TieredOptions{HashLen: 32})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackupCopy(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)
	root := t.TempDir()
	h := uint64(50)

	m, err := c.Backup(ctx, root, &h, false)
	require.NoError(t, err)
	assert.Equal(t, ModeCopy, m.Mode)
	assert.Equal(t, h, m.Height)
	assert.Equal(t, "local", m.Storage)
	assert.Equal(t, "v6.7", m.Schema)

	layout := newBackupLayout(root, h)
	got, ok, err := ReadManifest(afero.NewOsFs(), layout.dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, h, got.Height)

	cp := openLocalCopy(t, layout.chainData)
	rec, err := ledger.New(cp).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, h, rec.Height)
	assert.Equal(t, blockHash(h), rec.Hash)
	assert.Equal(t, lockTxHash(20), lockSlot(t, cp))
	assert.Equal(t, n.execHashes[h], executorHash(t, layout.statedb))
	assert.Equal(t, n.execHashes[h], executorHash(t, layout.nosql))

	// The live node is untouched.
	live, err := c.Ledger().ReadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(tipHeight), live)
	assert.Equal(t, lockTxHash(60), lockSlot(t, c.Backend()))
	assert.Equal(t, n.execHashes[tipHeight], executorHash(t, n.cfg.Executor.StatePath()))
}

func TestBackupCopyAtTip(t *testing.T) {
	n := newTestNode(t, localConfig)
	c := n.open(t)
	root := t.TempDir()

	m, err := c.Backup(context.Background(), root, nil, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(tipHeight), m.Height)

	layout := newBackupLayout(root, tipHeight)
	cp := openLocalCopy(t, layout.chainData)
	assert.Equal(t, lockTxHash(60), lockSlot(t, cp))
	assert.Equal(t, n.execHashes[tipHeight], executorHash(t, layout.statedb))
}

func TestBackupExport(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)
	root := t.TempDir()
	h := uint64(70)

	m, err := c.Backup(ctx, root, &h, true)
	require.NoError(t, err)
	assert.Equal(t, ModeExport, m.Mode)
	assert.Equal(t, uint64(0), m.Begin)

	layout := newBackupLayout(root, h)
	cp := openTieredCopy(t, layout.chainData)
	height, err := ledger.New(cp).ReadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, h, height)
	for _, bh := range []uint64{0, 60, h} {
		want, err := c.Backend().LoadFullBlock(ctx, bh)
		require.NoError(t, err)
		got, err := cp.LoadFullBlock(ctx, bh)
		require.NoError(t, err)
		assert.Equal(t, want, got, "block %d", bh)
	}
	_, err = cp.LoadFullBlock(ctx, h+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, lockTxHash(60), lockSlot(t, cp))

	state, err := executor.Open(layout.statedb)
	require.NoError(t, err)
	defer state.Close()
	cur, err := state.CurrentHash()
	require.NoError(t, err)
	assert.Equal(t, n.execHashes[h], cur)
	_, err = state.BlockHash(h + 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBackupAboveTip(t *testing.T) {
	c := newTestNode(t, localConfig).open(t)
	h := uint64(tipHeight + 1)
	_, err := c.Backup(context.Background(), t.TempDir(), &h, false)
	assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)
}

func TestExportRange(t *testing.T) {
	ctx := context.Background()
	c := newTestNode(t, tieredConfig).open(t)
	root := t.TempDir()

	for _, r := range [][2]uint64{{60, 40}, {0, tipHeight + 1}} {
		_, err := c.Export(ctx, root, r[0], r[1])
		assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)
	}

	m, err := c.Export(ctx, root, 40, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), m.Begin)
	assert.Equal(t, uint64(60), m.Height)
	assert.Equal(t, "tiered", m.Storage)

	cp := openTieredCopy(t, newBackupLayout(root, 60).chainData)
	height, err := ledger.New(cp).ReadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), height)
	_, err = cp.LoadFullBlock(ctx, 40)
	assert.NoError(t, err)
	_, err = cp.LoadFullBlock(ctx, 39)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, lockTxHash(60), lockSlot(t, cp))
}

func TestRollbackFromSnapshot(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)
	root := t.TempDir()
	h := uint64(50)
	_, err := c.Backup(ctx, root, &h, true)
	require.NoError(t, err)

	report, err := c.Rollback(ctx, h, Options{StateSnapshotRoot: root})
	require.NoError(t, err)
	assert.True(t, report.StateInstalled)
	assert.Equal(t, n.execHashes[h], executorHash(t, n.cfg.Executor.StatePath()))
	assert.Equal(t, n.execHashes[h], executorHash(t, n.cfg.Executor.ChainPath()))

	state, err := executor.Open(n.cfg.Executor.StatePath())
	require.NoError(t, err)
	defer state.Close()
	_, err = state.BlockHash(h + 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRollbackFromSnapshotRejected(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)
	root := t.TempDir()
	fs := afero.NewOsFs()

	_, err := c.Rollback(ctx, 50, Options{StateSnapshotRoot: root})
	assert.ErrorIs(t, err, operrors.ErrIO)

	dir := snapshotDir(root, 50)
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "data", "statedb"), 0o755))
	require.NoError(t, WriteManifest(fs, dir, &Manifest{Mode: ModeExport, Height: 49}))
	_, err = c.Rollback(ctx, 50, Options{StateSnapshotRoot: root})
	assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)

	// Rejected before anything was written.
	height, err := c.Ledger().ReadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(tipHeight), height)
	assert.True(t, exists(n.cfg.Controller.WalPath))
}

func TestManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/b/7", 0o755))

	_, ok, err := ReadManifest(fs, "/b/7")
	require.NoError(t, err)
	assert.False(t, ok)

	m := &Manifest{RunID: "run", Mode: ModeCopy, Height: 7, Storage: "local", Schema: "v6.3"}
	require.NoError(t, WriteManifest(fs, "/b/7", m))
	got, ok, err := ReadManifest(fs, "/b/7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Mode, got.Mode)
	assert.Equal(t, m.Height, got.Height)
	assert.Equal(t, m.Schema, got.Schema)

	require.NoError(t, afero.WriteFile(fs, "/b/7/manifest.toml", []byte("height = ["), 0o644))
	_, _, err = ReadManifest(fs, "/b/7")
	assert.ErrorIs(t, err, operrors.ErrIO)
}

func TestReplayCancelled(t *testing.T) {
	c := newTestNode(t, localConfig).open(t)
	dst := openTieredCopy(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Replay(ctx, c.Backend(), dst, 0, 10), context.Canceled)
}
