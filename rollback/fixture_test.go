package rollback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/cloudop/chain"
	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/config"
	"github.com/colorfulnotion/cloudop/executor"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/colorfulnotion/cloudop/trie"
	"github.com/stretchr/testify/require"
)

const (
	testLockID = 1005
	tipHeight  = 100
)

// lockHeights are the blocks carrying a transaction of lock testLockID, oldest first.
var lockHeights = []uint64{10, 20, 60}

const localConfig = `
[controller]
wal_path = "wal_chain"

[consensus_bft]
wal_path = "wal"

[executor_evm]
db_path = "data"

[storage_rocksdb]
db_path = "chain_data"
`

const tieredConfig = `
[controller]
wal_path = "wal_chain"

[consensus_bft]
wal_path = "wal"

[executor_evm]
db_path = "data"

[storage_opendal]
data_root = "chain_data"
l1_capacity = 64

[storage_opendal.cloud_storage]
service_type = "fs"
root = "cloud"
`

const tieredNoRemoteConfig = `
[controller]
wal_path = "wal_chain"

[consensus_bft]
wal_path = "wal"

[executor_evm]
db_path = "data"

[storage_opendal]
data_root = "chain_data"
`

type testNode struct {
	root       string
	cfg        *config.Config
	execHashes []common.Hash
}

func blockHash(h uint64) []byte {
	return common.Keccak256([]byte("block"), storage.HeightKey(h)).Bytes()
}

func lockTxHash(h uint64) []byte {
	return common.Keccak256([]byte("lock"), storage.HeightKey(h)).Bytes()
}

func testBlock(h uint64) *chain.Block {
	prev := make([]byte, 32)
	if h > 0 {
		prev = blockHash(h - 1)
	}
	blk := &chain.Block{
		Header: &chain.BlockHeader{Prevhash: prev, Height: h, Timestamp: 1000 + h},
		Body: []*chain.RawTransaction{
			chain.NewNormalTx([]byte("payload"), common.Keccak256([]byte("normal"), storage.HeightKey(h)).Bytes()),
		},
		Proof:     []byte("proof"),
		StateRoot: bytes.Repeat([]byte{0xcc}, 32),
	}
	for i, lh := range lockHeights {
		if lh != h {
			continue
		}
		pre := make([]byte, 33)
		if i > 0 {
			pre = lockTxHash(lockHeights[i-1])
		}
		blk.Body = append(blk.Body, chain.NewUtxoTx(lockTxHash(h), pre, testLockID, []byte("out")))
	}
	return blk
}

// newTestNode lays out a node directory holding blocks 0..tipHeight in the chain
// store and in both executor dbs.
func newTestNode(t *testing.T, cfgText string) *testNode {
	root := t.TempDir()
	path := filepath.Join(root, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfgText), 0o644))
	cfg, err := config.Read(path, root)
	require.NoError(t, err)
	for _, dir := range []string{cfg.Controller.WalPath, cfg.ConsensusBft.WalPath} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "0.log"), []byte("wal"), 0o644))
	}

	n := &testNode{root: root, cfg: cfg}
	n.writeChain(t)
	n.writeExecutor(t)
	return n
}

func (n *testNode) writeChain(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.OpenBackend(n.cfg)
	require.NoError(t, err)
	defer backend.Close()
	for h := uint64(0); h <= tipHeight; h++ {
		data := append(blockHash(h), chain.EncodeBlock(testBlock(h))...)
		require.NoError(t, backend.StoreAllBlockData(ctx, h, data))
	}
	last := lockHeights[len(lockHeights)-1]
	require.NoError(t, backend.Store(ctx, storage.Global, storage.HeightKey(testLockID), lockTxHash(last)))
	require.NoError(t, backend.Store(ctx, storage.Global, storage.HeightKey(1001), []byte("chain-id")))
}

func (n *testNode) writeExecutor(t *testing.T) {
	state, err := executor.Create(n.cfg.Executor.StatePath())
	require.NoError(t, err)
	defer state.Close()
	chainDB, err := executor.Create(n.cfg.Executor.ChainPath())
	require.NoError(t, err)
	defer chainDB.Close()

	addr := common.BytesToAddress(bytes.Repeat([]byte{0x42}, common.AddressLength))
	var parent common.Hash
	for h := uint64(0); h <= tipHeight; h++ {
		acc := trie.NewEmptyAccount()
		acc.Balance.SetUint64(h)
		enc := trie.EncodeLeaf(trie.KeyToNibbles(addr.Bytes()), acc.Encode())
		stateRoot := trie.HashNode(enc)
		require.NoError(t, state.StateStore().Put(stateRoot.Bytes(), enc))

		header := &executor.Header{ParentHash: parent, Number: h, Timestamp: 1000 + h, StateRoot: stateRoot}
		hash := header.Hash()
		require.NoError(t, state.PutBlockHash(h, hash))
		require.NoError(t, state.PutHeaderByHash(hash, header.Encode()))
		require.NoError(t, chainDB.PutHeaderByNumber(h, header))
		n.execHashes = append(n.execHashes, hash)
		parent = hash
	}
	require.NoError(t, state.SetCurrentHash(parent))
	require.NoError(t, chainDB.SetCurrentHash(parent))
}

func (n *testNode) open(t *testing.T) *Coordinator {
	c, err := Open(n.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (n *testNode) setWatermark(t *testing.T, c *Coordinator, w uint64) {
	require.NoError(t, c.Backend().Store(context.Background(), storage.Global, storage.HeightKey(storage.KeyDeleteHeight), common.Uint64ToBytes(w)))
}

func executorHash(t *testing.T, path string) common.Hash {
	db, err := executor.Open(path)
	require.NoError(t, err)
	defer db.Close()
	h, err := db.CurrentHash()
	require.NoError(t, err)
	return h
}

func lockSlot(t *testing.T, b storage.Backend) []byte {
	v, err := b.Load(context.Background(), storage.Global, storage.HeightKey(testLockID))
	if err != nil {
		require.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}
	return v
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
