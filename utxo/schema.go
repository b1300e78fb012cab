package utxo

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
)

// Schema fixes which lock ids exist and how wide the genesis sentinel is. Node
// releases disagree on the lock range, so it is selected by name from config.
type Schema struct {
	Name        string
	LockVersion uint64 // first lock id
	LockChainID uint64 // holds raw chain id data, never a tx hash
	LockButton  uint64 // one past the last lock id
	HashLen     int
	SentinelLen int
}

const (
	lockIDVersion = 1000
	lockIDChainID = 1001
)

var (
	SchemaV63 = Schema{Name: "v6.3", LockVersion: lockIDVersion, LockChainID: lockIDChainID, LockButton: 1007, HashLen: 32, SentinelLen: 33}
	SchemaV67 = Schema{Name: "v6.7", LockVersion: lockIDVersion, LockChainID: lockIDChainID, LockButton: 1008, HashLen: 32, SentinelLen: 33}
)

// SchemaByName returns the named schema sized for hashLen; the sentinel is one byte wider than a hash.
func SchemaByName(name string, hashLen int) (Schema, error) {
	var s Schema
	switch name {
	case SchemaV63.Name:
		s = SchemaV63
	case SchemaV67.Name, "":
		s = SchemaV67
	default:
		return Schema{}, fmt.Errorf("unknown utxo schema %q: %w", name, operrors.ErrConfig)
	}
	if hashLen <= 0 {
		return Schema{}, fmt.Errorf("hash length %d: %w", hashLen, operrors.ErrConfig)
	}
	s.HashLen = hashLen
	s.SentinelLen = hashLen + 1
	return s, nil
}

// LockIDs lists every lock id of the schema in ascending order.
func (s Schema) LockIDs() []uint64 {
	ids := make([]uint64, 0, s.LockButton-s.LockVersion)
	for id := s.LockVersion; id < s.LockButton; id++ {
		ids = append(ids, id)
	}
	return ids
}

// IsSentinel reports whether a pre_tx_hash marks the first transaction of a lock chain.
func (s Schema) IsSentinel(preTxHash []byte) bool {
	return common.IsZeroBytes(preTxHash, s.SentinelLen)
}
