package storage

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/cloudop/config"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/spf13/afero"
)

// Kind is the closed set of chain store variants.
type Kind int

const (
	KindLocal Kind = iota
	KindTiered
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindTiered:
		return "tiered"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// HashChained reports whether ledger key 1 stores the current block hash. On tiered
// backends the current hash is virtual and key 1 is the remote backup pointer.
func (k Kind) HashChained() bool {
	return k == KindLocal
}

// Backend is the chain store as seen by the rollback engine. Each call is atomic for
// its single key; nothing spans keys.
type Backend interface {
	Kind() Kind
	Load(ctx context.Context, region Region, key []byte) ([]byte, error)
	Store(ctx context.Context, region Region, key []byte, value []byte) error
	Delete(ctx context.Context, region Region, key []byte) error
	// LoadFullBlock reassembles the block at height from its compact form and indexes.
	LoadFullBlock(ctx context.Context, height uint64) ([]byte, error)
	// StoreAllBlockData writes a block and every index derived from it. hashAndBlock is
	// the block hash followed by the encoded block.
	StoreAllBlockData(ctx context.Context, height uint64, hashAndBlock []byte) error
	Close() error
}

// OpenBackend selects and opens the backend named by the node config.
func OpenBackend(cfg *config.Config) (Backend, error) {
	table, err := cfg.StorageTable()
	if err != nil {
		return nil, err
	}
	hashLen := int(cfg.Controller.HashLen)
	if table == config.TableRocksdb {
		b, err := OpenLocal(cfg.StorageRocksdb.DbPath, hashLen)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	oc := cfg.StorageOpendal
	remote, err := NewObjectStore(afero.NewOsFs(), oc.CloudStorage)
	if err != nil {
		return nil, err
	}
	b, err := OpenTiered(oc.DataRoot, TieredOptions{
		L1Capacity: int(oc.L1Capacity),
		HashLen:    hashLen,
		Remote:     remote,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func checkHashLen(hashLen int) error {
	if hashLen <= 0 {
		return fmt.Errorf("hash length %d: %w", hashLen, operrors.ErrConfig)
	}
	return nil
}
