package executor

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/colorfulnotion/cloudop/trie"
	"github.com/ethereum/go-ethereum/rlp"
)

// Category is the column a record lives in; the store prefixes every key with it.
type Category byte

const (
	CategoryState   Category = 0
	CategoryHeaders Category = 1
	CategoryBodies  Category = 2
	CategoryExtra   Category = 3
)

const (
	extraBlockNumber2Hash   byte = 0x05
	extraBlockNumber2Header byte = 0x06
)

var currentHashKey = []byte("CurrentHash")

func BlockNumber2HashKey(h uint64) []byte {
	return append([]byte{extraBlockNumber2Hash}, common.Uint64ToBytes(h)...)
}

func BlockNumber2HeaderKey(h uint64) []byte {
	return append([]byte{extraBlockNumber2Header}, common.Uint64ToBytes(h)...)
}

// DB is one of the executor's databases: statedb holds the state trie and block hash
// indexes, nosql holds headers by number.
type DB struct {
	store *storage.PersistenceStore
}

// Open opens an existing database; a missing dir is an IOError.
func Open(path string) (*DB, error) {
	store, err := storage.OpenExistingPersistenceStore(path)
	if err != nil {
		return nil, fmt.Errorf("executor db: %w", err)
	}
	return &DB{store: store}, nil
}

// Create opens the database at path, creating it when missing. An empty path is in-memory.
func Create(path string) (*DB, error) {
	store, err := storage.NewPersistenceStore(path)
	if err != nil {
		return nil, fmt.Errorf("executor db: %w", err)
	}
	return &DB{store: store}, nil
}

func (db *DB) Close() error { return db.store.Close() }

func dbKey(cat Category, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	return append(append(out, byte(cat)), key...)
}

func (db *DB) Get(cat Category, key []byte) ([]byte, error) {
	return db.store.Get(dbKey(cat, key))
}

func (db *DB) Put(cat Category, key []byte, value []byte) error {
	return db.store.Put(dbKey(cat, key), value)
}

// StateStore is the node store holding the state trie, code and abi.
func (db *DB) StateStore() trie.NodeStore {
	return trie.NewPrefixStore(db.store, []byte{byte(CategoryState)})
}

func (db *DB) getHash(key []byte) (common.Hash, error) {
	raw, err := db.Get(CategoryExtra, key)
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	if err := rlp.DecodeBytes(raw, &h); err != nil {
		return common.Hash{}, fmt.Errorf("decode hash at %x: %v: %w", key, err, operrors.ErrIO)
	}
	return h, nil
}

func (db *DB) putHash(key []byte, h common.Hash) error {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		return fmt.Errorf("encode hash: %v: %w", err, operrors.ErrIO)
	}
	return db.Put(CategoryExtra, key, enc)
}

func (db *DB) CurrentHash() (common.Hash, error) {
	h, err := db.getHash(currentHashKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("current hash: %w", err)
	}
	return h, nil
}

func (db *DB) SetCurrentHash(h common.Hash) error { return db.putHash(currentHashKey, h) }

func (db *DB) BlockHash(number uint64) (common.Hash, error) {
	h, err := db.getHash(BlockNumber2HashKey(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash of block %d: %w", number, err)
	}
	return h, nil
}

func (db *DB) PutBlockHash(number uint64, h common.Hash) error {
	return db.putHash(BlockNumber2HashKey(number), h)
}

// RawHeaderByHash returns the header bytes stored under the block hash.
func (db *DB) RawHeaderByHash(h common.Hash) ([]byte, error) {
	raw, err := db.Get(CategoryHeaders, h.Bytes())
	if err != nil {
		return nil, fmt.Errorf("header %x: %w", h, err)
	}
	return raw, nil
}

func (db *DB) HeaderByHash(h common.Hash) (*Header, error) {
	raw, err := db.RawHeaderByHash(h)
	if err != nil {
		return nil, err
	}
	return DecodeHeader(raw)
}

func (db *DB) PutHeaderByHash(h common.Hash, raw []byte) error {
	return db.Put(CategoryHeaders, h.Bytes(), raw)
}

func (db *DB) HeaderByNumber(number uint64) (*Header, error) {
	raw, err := db.Get(CategoryHeaders, BlockNumber2HeaderKey(number))
	if err != nil {
		return nil, fmt.Errorf("header of block %d: %w", number, err)
	}
	return DecodeHeader(raw)
}

func (db *DB) PutHeaderByNumber(number uint64, header *Header) error {
	return db.Put(CategoryHeaders, BlockNumber2HeaderKey(number), header.Encode())
}
