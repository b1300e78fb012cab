package storage

import (
	"encoding/hex"
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
)

// Region partitions the chain store's key space.
type Region uint32

const (
	// Global holds the ledger scalars (keys 0, 1, 2) and the UTXO lock slots keyed by lock id.
	Global                      Region = 0
	Transactions                Region = 1
	BlockHeader                 Region = 2
	BlockBody                   Region = 3
	BlockHash                   Region = 4
	Proof                       Region = 5
	Result                      Region = 6
	TransactionHash2BlockHeight Region = 7
	BlockHash2BlockHeight       Region = 8
	TransactionIndex            Region = 9
	CompactBlock                Region = 10
	FullBlock                   Region = 11
)

var regionNames = map[Region]string{
	Global:                      "Global",
	Transactions:                "Transactions",
	BlockHeader:                 "BlockHeader",
	BlockBody:                   "BlockBody",
	BlockHash:                   "BlockHash",
	Proof:                       "Proof",
	Result:                      "Result",
	TransactionHash2BlockHeight: "TransactionHash2BlockHeight",
	BlockHash2BlockHeight:       "BlockHash2BlockHeight",
	TransactionIndex:            "TransactionIndex",
	CompactBlock:                "CompactBlock",
	FullBlock:                   "FullBlock",
}

func (r Region) String() string {
	if name, ok := regionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Region(%d)", uint32(r))
}

// Ledger scalar keys inside the Global region.
const (
	KeyCurrentHeight uint64 = 0
	// KeyCurrentHash holds the current hash on hash-chained backends and the
	// backup pointer on the remote tier of a tiered backend.
	KeyCurrentHash   uint64 = 1
	KeyDeleteHeight  uint64 = 2
)

// CompositeKey is region_be4 ++ key, the address every backend stores under.
func CompositeKey(region Region, key []byte) []byte {
	out := make([]byte, 0, 4+len(key))
	out = append(out, common.Uint32ToBytes(uint32(region))...)
	return append(out, key...)
}

// RealKey is the hex form of CompositeKey used by the tiered backend.
func RealKey(region Region, key []byte) string {
	return hex.EncodeToString(CompositeKey(region, key))
}

// HeightKey encodes heights, ledger scalar keys and lock ids.
func HeightKey(h uint64) []byte {
	return common.Uint64ToBytes(h)
}
