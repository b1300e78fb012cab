package common

import (
	"encoding/hex"
	"fmt"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
)

const (
	HashLength    = ethereumCommon.HashLength
	AddressLength = ethereumCommon.AddressLength
)

// Hash is Ethereum's common.Hash; trie nodes, code blobs and executor headers are all keyed by it.
type Hash = ethereumCommon.Hash

// Address is Ethereum's common.Address, used to scope per-account storage.
type Address = ethereumCommon.Address

// BytesToHash converts a byte slice to a Hash.
func BytesToHash(b []byte) Hash {
	return ethereumCommon.BytesToHash(b)
}

func BytesToAddress(b []byte) Address {
	return ethereumCommon.BytesToAddress(b)
}

// Bytes2Hex renders raw bytes with a 0x prefix, the way hashes show up in logs.
func Bytes2Hex(d []byte) string {
	return "0x" + hex.EncodeToString(d)
}

// Hex2Bytes decodes a hex string with or without the 0x prefix.
func Hex2Bytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("Hex2Bytes %q: %w", s, err)
	}
	return b, nil
}
