package common

import (
	"golang.org/x/crypto/sha3"
)

var (
	// NilDataHash is keccak256 of the empty byte string. Accounts without code or abi
	// carry it in place of a real blob reference.
	NilDataHash = Keccak256(nil)

	// EmptyRootHash is the root of an empty trie, keccak256(rlp("")).
	EmptyRootHash = Keccak256([]byte{0x80})
)

// Keccak256 computes the legacy keccak256 hash of the concatenated inputs.
func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return BytesToHash(h.Sum(nil))
}

func IsNilHash(h Hash) bool {
	return h == Hash{}
}

// IsEmptyCode reports whether a code or abi hash references no blob. Only keccak256("")
// qualifies; a zero hash still names a blob that must exist.
func IsEmptyCode(h Hash) bool {
	return h == NilDataHash
}

// IsEmptyRoot reports whether a storage root references no trie.
func IsEmptyRoot(h Hash) bool {
	return h == EmptyRootHash || IsNilHash(h)
}
