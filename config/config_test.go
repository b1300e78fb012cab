package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rocksdbConfig = `
[controller]
wal_path = "./data/wal_chain"

[executor_evm]
db_path = "data"

[storage_rocksdb]
db_path = "chain_data"

[cloudop]
schema = "v6.3"
`

func TestParseRocksdb(t *testing.T) {
	cfg, err := Parse(rocksdbConfig)
	require.NoError(t, err)

	table, err := cfg.StorageTable()
	require.NoError(t, err)
	assert.Equal(t, TableRocksdb, table)
	assert.Equal(t, uint32(DefaultHashLen), cfg.Controller.HashLen)
	assert.Equal(t, "v6.3", cfg.Cloudop.Schema)
	assert.Equal(t, filepath.Join("data", "statedb"), cfg.Executor.StatePath())
}

func TestParseOpendalDefaults(t *testing.T) {
	cfg, err := Parse(`
[storage_opendal]
data_root = "chain_data"
l2_capacity = 1073741824
backup_interval = 1000
retreat_interval = 3

[storage_opendal.cloud_storage]
service_type = "fs"
root = "remote"
`)
	require.NoError(t, err)
	table, err := cfg.StorageTable()
	require.NoError(t, err)
	assert.Equal(t, TableOpendal, table)
	assert.Equal(t, uint64(10000), cfg.StorageOpendal.L1Capacity)
	assert.Equal(t, "fs", cfg.StorageOpendal.CloudStorage.ServiceType)
	assert.Equal(t, "v6.7", cfg.Cloudop.Schema)
}

func TestStorageTableErrors(t *testing.T) {
	cfg, err := Parse(`[controller]
hash_len = 32`)
	require.NoError(t, err)
	_, err = cfg.StorageTable()
	assert.True(t, errors.Is(err, operrors.ErrConfig))

	cfg, err = Parse("[storage_rocksdb]\n[storage_opendal]\n")
	require.NoError(t, err)
	_, err = cfg.StorageTable()
	assert.True(t, errors.Is(err, operrors.ErrConfig))

	_, err = Parse("[controller\n")
	assert.True(t, errors.Is(err, operrors.ErrConfig))
}

func TestReadResolvesAgainstNodeRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(rocksdbConfig), 0o644))

	cfg, err := Read(path, "/node")
	require.NoError(t, err)
	assert.Equal(t, "/node/data", cfg.Executor.DbPath)
	assert.Equal(t, "/node/chain_data", cfg.StorageRocksdb.DbPath)
	assert.Equal(t, "/node/data/wal_chain", cfg.Controller.WalPath)

	_, err = Read(filepath.Join(dir, "missing.toml"), dir)
	assert.True(t, errors.Is(err, operrors.ErrConfig))
}
