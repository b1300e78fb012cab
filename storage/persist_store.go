package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by every store when a key is absent.
var ErrNotFound = fmt.Errorf("not found: %w", operrors.ErrIO)

// PersistenceStore wraps LevelDB for raw key-value persistence. It backs the local
// chain store, the executor databases and the trie node stores.
type PersistenceStore struct {
	db *leveldb.DB
}

// NewPersistenceStore opens or creates a LevelDB database at the given path.
// If path is empty, uses in-memory storage.
func NewPersistenceStore(path string) (*PersistenceStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %v: %w", path, err, operrors.ErrIO)
	}
	return &PersistenceStore{db: db}, nil
}

// OpenExistingPersistenceStore fails instead of creating an empty database when path is missing.
func OpenExistingPersistenceStore(path string) (*PersistenceStore, error) {
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("database dir %s does not exist: %w", path, operrors.ErrIO)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %v: %w", path, err, operrors.ErrIO)
	}
	return &PersistenceStore{db: db}, nil
}

// Get returns ErrNotFound when the key is absent.
func (ps *PersistenceStore) Get(key []byte) ([]byte, error) {
	data, err := ps.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("get %x: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %x: %v: %w", key, err, operrors.ErrIO)
	}
	return data, nil
}

func (ps *PersistenceStore) Put(key []byte, value []byte) error {
	if err := ps.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("put %x: %v: %w", key, err, operrors.ErrIO)
	}
	return nil
}

// Delete of an absent key succeeds.
func (ps *PersistenceStore) Delete(key []byte) error {
	if err := ps.db.Delete(key, nil); err != nil {
		return fmt.Errorf("delete %x: %v: %w", key, err, operrors.ErrIO)
	}
	return nil
}

func (ps *PersistenceStore) Close() error {
	return ps.db.Close()
}
