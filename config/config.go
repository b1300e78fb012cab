package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/colorfulnotion/cloudop/operrors"
)

const (
	TableRocksdb = "storage_rocksdb"
	TableOpendal = "storage_opendal"

	DefaultHashLen = 32
)

type ControllerConfig struct {
	WalPath string `toml:"wal_path"`
	HashLen uint32 `toml:"hash_len"`
}

type ConsensusConfig struct {
	WalPath string `toml:"wal_path"`
}

type ExecutorConfig struct {
	DbPath string `toml:"db_path"`
}

// StatePath is the executor's account-state trie db.
func (e ExecutorConfig) StatePath() string { return filepath.Join(e.DbPath, "statedb") }

// ChainPath is the executor's own header/extra db.
func (e ExecutorConfig) ChainPath() string { return filepath.Join(e.DbPath, "nosql") }

type RocksdbConfig struct {
	DbPath string `toml:"db_path"`
}

// CloudStorageConfig describes the remote tier. ServiceType "fs" uses Root, "azblob"
// uses Endpoint and Container.
type CloudStorageConfig struct {
	ServiceType string `toml:"service_type"`
	Root        string `toml:"root"`
	Endpoint    string `toml:"endpoint"`
	Container   string `toml:"container"`
}

// OpendalConfig is the part of [storage_opendal] the tool reads. The node's l2_capacity,
// backup_interval and retreat_interval keys are accepted and ignored.
type OpendalConfig struct {
	DataRoot     string             `toml:"data_root"`
	L1Capacity   uint64             `toml:"l1_capacity"`
	CloudStorage CloudStorageConfig `toml:"cloud_storage"`
}

// CloudopConfig holds the tool's own knobs.
type CloudopConfig struct {
	Schema             string `toml:"schema"`
	ResolveConcurrency int    `toml:"resolve_concurrency"`
}

// Config is the subset of a node's config.toml the tool reads.
type Config struct {
	Controller        ControllerConfig `toml:"controller"`
	ConsensusBft      ConsensusConfig  `toml:"consensus_bft"`
	ConsensusRaft     ConsensusConfig  `toml:"consensus_raft"`
	ConsensusOverlord ConsensusConfig  `toml:"consensus_overlord"`
	Executor          ExecutorConfig   `toml:"executor_evm"`
	StorageRocksdb    *RocksdbConfig   `toml:"storage_rocksdb"`
	StorageOpendal    *OpendalConfig   `toml:"storage_opendal"`
	Cloudop           CloudopConfig    `toml:"cloudop"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			WalPath: "./data/wal_chain",
			HashLen: DefaultHashLen,
		},
		ConsensusBft:      ConsensusConfig{WalPath: "./data/wal"},
		ConsensusRaft:     ConsensusConfig{WalPath: "./data/raft-data-dir"},
		ConsensusOverlord: ConsensusConfig{WalPath: "./data/overlord_wal"},
		Executor:          ExecutorConfig{DbPath: "data"},
		Cloudop: CloudopConfig{
			Schema:             "v6.7",
			ResolveConcurrency: 4,
		},
	}
}

func NewDefaultOpendalConfig() *OpendalConfig {
	return &OpendalConfig{
		DataRoot:   "chain_data",
		L1Capacity: 10000,
	}
}

// Read decodes the config file at path. Relative paths inside it are resolved against
// nodeRoot, so the tool behaves as if it ran from inside the node directory.
func Read(path string, nodeRoot string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %v: %w", path, err, operrors.ErrConfig)
	}
	cfg, err := Parse(string(buf))
	if err != nil {
		return nil, err
	}
	cfg.resolve(nodeRoot)
	return cfg, nil
}

// Parse decodes TOML text and fills defaults. Paths stay as written.
func Parse(data string) (*Config, error) {
	cfg := NewDefaultConfig()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %v: %w", err, operrors.ErrConfig)
	}
	if md.IsDefined(TableRocksdb) && cfg.StorageRocksdb == nil {
		cfg.StorageRocksdb = &RocksdbConfig{}
	}
	if md.IsDefined(TableOpendal) {
		if cfg.StorageOpendal == nil {
			cfg.StorageOpendal = &OpendalConfig{}
		}
		cfg.StorageOpendal.fillDefaults()
	}
	if cfg.StorageRocksdb != nil && cfg.StorageRocksdb.DbPath == "" {
		cfg.StorageRocksdb.DbPath = "chain_data"
	}
	if cfg.Controller.HashLen == 0 {
		cfg.Controller.HashLen = DefaultHashLen
	}
	if cfg.Cloudop.ResolveConcurrency <= 0 {
		cfg.Cloudop.ResolveConcurrency = 1
	}
	return cfg, nil
}

func (o *OpendalConfig) fillDefaults() {
	d := NewDefaultOpendalConfig()
	if o.DataRoot == "" {
		o.DataRoot = d.DataRoot
	}
	if o.L1Capacity == 0 {
		o.L1Capacity = d.L1Capacity
	}
}

// StorageTable names the storage backend table present in the config. Exactly one of
// storage_rocksdb and storage_opendal must be configured.
func (c *Config) StorageTable() (string, error) {
	switch {
	case c.StorageRocksdb != nil && c.StorageOpendal != nil:
		return "", fmt.Errorf("both [%s] and [%s] are configured: %w", TableRocksdb, TableOpendal, operrors.ErrConfig)
	case c.StorageRocksdb != nil:
		return TableRocksdb, nil
	case c.StorageOpendal != nil:
		return TableOpendal, nil
	default:
		return "", fmt.Errorf("storage config not found: %w", operrors.ErrConfig)
	}
}

// StoragePath is the directory holding the chain store, whichever backend is configured.
func (c *Config) StoragePath() (string, error) {
	table, err := c.StorageTable()
	if err != nil {
		return "", err
	}
	if table == TableRocksdb {
		return c.StorageRocksdb.DbPath, nil
	}
	return c.StorageOpendal.DataRoot, nil
}

// ConsensusWalPaths lists every consensus engine's WAL dir; only the configured engine's
// dir exists on a real node, the rest are removed as no-ops.
func (c *Config) ConsensusWalPaths() []string {
	return []string{c.ConsensusBft.WalPath, c.ConsensusRaft.WalPath, c.ConsensusOverlord.WalPath}
}

func (c *Config) resolve(nodeRoot string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(nodeRoot, p)
	}
	c.Controller.WalPath = abs(c.Controller.WalPath)
	c.ConsensusBft.WalPath = abs(c.ConsensusBft.WalPath)
	c.ConsensusRaft.WalPath = abs(c.ConsensusRaft.WalPath)
	c.ConsensusOverlord.WalPath = abs(c.ConsensusOverlord.WalPath)
	c.Executor.DbPath = abs(c.Executor.DbPath)
	if c.StorageRocksdb != nil {
		c.StorageRocksdb.DbPath = abs(c.StorageRocksdb.DbPath)
	}
	if c.StorageOpendal != nil {
		c.StorageOpendal.DataRoot = abs(c.StorageOpendal.DataRoot)
		if c.StorageOpendal.CloudStorage.ServiceType == "fs" {
			c.StorageOpendal.CloudStorage.Root = abs(c.StorageOpendal.CloudStorage.Root)
		}
	}
}
