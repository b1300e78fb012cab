package rollback

import (
	"context"
	"testing"

	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/colorfulnotion/cloudop/utxo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(t *testing.T, outs []utxo.Outcome, lockID uint64) utxo.Outcome {
	for _, o := range outs {
		if o.LockID == lockID {
			return o
		}
	}
	t.Fatalf("no outcome for lock %d", lockID)
	return utxo.Outcome{}
}

func TestRollbackLocal(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)

	report, err := c.Rollback(ctx, 50, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, uint64(tipHeight), report.Before.Height)
	assert.Equal(t, blockHash(tipHeight), report.Before.Hash)
	assert.Equal(t, uint64(50), report.After.Height)
	assert.Equal(t, blockHash(50), report.After.Hash)
	assert.False(t, report.StateInstalled)

	rec, err := c.Ledger().Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), rec.Height)
	assert.Equal(t, blockHash(50), rec.Hash)

	lock := outcome(t, report.Locks, testLockID)
	assert.Equal(t, utxo.Rewritten, lock.Action)
	assert.Equal(t, 1, lock.Hops)
	assert.Equal(t, lockTxHash(20), lockSlot(t, c.Backend()))
	assert.Equal(t, utxo.Skipped, outcome(t, report.Locks, 1001).Action)
	assert.Equal(t, utxo.Absent, outcome(t, report.Locks, 1000).Action)

	assert.Equal(t, n.execHashes[50], executorHash(t, n.cfg.Executor.StatePath()))
	assert.Equal(t, n.execHashes[50], executorHash(t, n.cfg.Executor.ChainPath()))

	assert.False(t, exists(n.cfg.Controller.WalPath), "controller wal replays blocks above the new height")
	assert.True(t, exists(n.cfg.ConsensusBft.WalPath))

	// Blocks above the target stay in the store.
	_, err = c.Backend().LoadFullBlock(ctx, 80)
	assert.NoError(t, err)
}

func TestRollbackTwiceNeedsResume(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)

	_, err := c.Rollback(ctx, 50, Options{})
	require.NoError(t, err)
	before, err := c.Ledger().Snapshot(ctx)
	require.NoError(t, err)

	_, err = c.Rollback(ctx, 50, Options{})
	assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)
	after, err := c.Ledger().Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, lockTxHash(20), lockSlot(t, c.Backend()))

	report, err := c.Rollback(ctx, 50, Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, utxo.Kept, outcome(t, report.Locks, testLockID).Action)
	assert.Equal(t, lockTxHash(20), lockSlot(t, c.Backend()))
	assert.Equal(t, blockHash(50), report.After.Hash)
	assert.Equal(t, n.execHashes[50], executorHash(t, n.cfg.Executor.StatePath()))
}

func TestRollbackOutOfRange(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, localConfig)
	c := n.open(t)

	for _, target := range []uint64{tipHeight, tipHeight + 1} {
		_, err := c.Rollback(ctx, target, Options{})
		assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)
	}
	_, err := c.Rollback(ctx, tipHeight+1, Options{Resume: true})
	assert.ErrorIs(t, err, operrors.ErrHeightOutOfRange)

	// Nothing was touched.
	assert.True(t, exists(n.cfg.Controller.WalPath))
	assert.Equal(t, lockTxHash(60), lockSlot(t, c.Backend()))
	assert.Equal(t, n.execHashes[tipHeight], executorHash(t, n.cfg.Executor.StatePath()))
}

func TestRollbackBelowEveryLockTx(t *testing.T) {
	n := newTestNode(t, localConfig)
	c := n.open(t)

	report, err := c.Rollback(context.Background(), 5, Options{})
	require.NoError(t, err)
	lock := outcome(t, report.Locks, testLockID)
	assert.Equal(t, utxo.Deleted, lock.Action)
	assert.Equal(t, 2, lock.Hops)
	assert.Nil(t, lockSlot(t, c.Backend()))
}

func TestRollbackCleansConsensusWal(t *testing.T) {
	n := newTestNode(t, localConfig)
	c := n.open(t)

	_, err := c.Rollback(context.Background(), 50, Options{CleanConsensusData: true})
	require.NoError(t, err)
	assert.False(t, exists(n.cfg.ConsensusBft.WalPath))
	assert.False(t, exists(n.cfg.Controller.WalPath))
}

func TestRollbackWatermark(t *testing.T) {
	for _, tc := range []struct {
		name      string
		watermark uint64
		want      uint64
	}{
		{"below target", 30, 30},
		{"above target", 60, 50},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			n := newTestNode(t, localConfig)
			c := n.open(t)
			n.setWatermark(t, c, tc.watermark)

			report, err := c.Rollback(ctx, 50, Options{})
			require.NoError(t, err)
			assert.True(t, report.After.HasWatermark)
			assert.Equal(t, tc.want, report.After.Watermark)

			w, ok, err := c.Ledger().ReadWatermark(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.want, w)
		})
	}
}

func TestRollbackTiered(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, tieredConfig)
	c := n.open(t)
	require.Equal(t, storage.KindTiered, c.Backend().Kind())

	report, err := c.Rollback(ctx, 50, Options{})
	require.NoError(t, err)
	assert.Nil(t, report.Before.Hash)
	assert.Nil(t, report.After.Hash)
	assert.Equal(t, uint64(50), report.After.Height)
	assert.Equal(t, lockTxHash(20), lockSlot(t, c.Backend()))
	assert.Equal(t, n.execHashes[50], executorHash(t, n.cfg.Executor.StatePath()))

	// A tiered node keeps its controller wal.
	assert.True(t, exists(n.cfg.Controller.WalPath))

	_, err = c.Ledger().ReadHash(ctx)
	assert.ErrorIs(t, err, operrors.ErrBackendMismatch)
}

func TestCloudRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("local backend", func(t *testing.T) {
		c := newTestNode(t, localConfig).open(t)
		assert.ErrorIs(t, c.CloudRollback(ctx, 10), operrors.ErrBackendMismatch)
	})

	t.Run("backup not started", func(t *testing.T) {
		c := newTestNode(t, tieredConfig).open(t)
		require.NoError(t, c.CloudRollback(ctx, 10))
		_, ok, err := c.Ledger().ReadBackupPointer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("moves pointer", func(t *testing.T) {
		n := newTestNode(t, tieredConfig)
		c := n.open(t)
		require.NoError(t, c.Ledger().WriteBackupPointer(ctx, ledger.BackupPointer{Height: 80, Index: 3}))

		assert.ErrorIs(t, c.CloudRollback(ctx, 80), operrors.ErrHeightOutOfRange)
		assert.ErrorIs(t, c.CloudRollback(ctx, 90), operrors.ErrHeightOutOfRange)

		n.setWatermark(t, c, 45)
		assert.ErrorIs(t, c.CloudRollback(ctx, 40), operrors.ErrHeightOutOfRange)

		require.NoError(t, c.CloudRollback(ctx, 50))
		p, ok, err := c.Ledger().ReadBackupPointer(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ledger.BackupPointer{Height: 51}, p)
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, tieredConfig)
	c := n.open(t)
	require.NoError(t, c.Ledger().WriteBackupPointer(ctx, ledger.BackupPointer{Height: 70}))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.KindTiered, st.Kind)
	assert.Equal(t, uint64(tipHeight), st.Record.Height)
	assert.Len(t, st.Locks, len(c.Schema().LockIDs()))
	for _, l := range st.Locks {
		switch l.LockID {
		case testLockID:
			assert.True(t, l.Present)
			assert.Equal(t, lockTxHash(60), l.Value)
		case 1001:
			assert.True(t, l.Present)
		default:
			assert.False(t, l.Present, "lock %d", l.LockID)
		}
	}
	require.NotNil(t, st.Backup)
	assert.Equal(t, uint64(70), st.Backup.Height)
}

func TestStatusBackupPointerErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no remote tier", func(t *testing.T) {
		c := newTestNode(t, tieredNoRemoteConfig).open(t)
		st, err := c.Status(ctx)
		require.NoError(t, err)
		assert.Nil(t, st.Backup)
	})

	t.Run("malformed pointer", func(t *testing.T) {
		c := newTestNode(t, tieredConfig).open(t)
		remote := c.Backend().(*storage.TieredBackend).Remote()
		path := storage.RealKey(storage.Global, storage.HeightKey(storage.KeyCurrentHash))
		require.NoError(t, remote.Write(ctx, path, []byte{1, 2, 3}))

		_, err := c.Status(ctx)
		assert.ErrorIs(t, err, operrors.ErrIO)
	})
}
