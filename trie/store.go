package trie

import (
	"github.com/colorfulnotion/cloudop/common"
)

// NodeStore is the key-value view the extractor reads nodes and blobs from and copies
// them into. storage.PersistenceStore satisfies it. Get must wrap storage.ErrNotFound
// for absent keys.
type NodeStore interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
}

// PrefixStore namespaces every key of an inner store.
type PrefixStore struct {
	inner  NodeStore
	prefix []byte
}

func NewPrefixStore(inner NodeStore, prefix []byte) *PrefixStore {
	return &PrefixStore{inner: inner, prefix: common.CopyBytes(prefix)}
}

func (s *PrefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	return append(append(out, s.prefix...), k...)
}

func (s *PrefixStore) Get(key []byte) ([]byte, error) {
	return s.inner.Get(s.key(key))
}

func (s *PrefixStore) Put(key []byte, value []byte) error {
	return s.inner.Put(s.key(key), value)
}

// ScopedStore is the account-scoped namespace holding an account's storage trie nodes
// and its code and abi blobs.
func ScopedStore(inner NodeStore, addr common.Address) *PrefixStore {
	return NewPrefixStore(inner, addr.Bytes())
}
