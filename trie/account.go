package trie

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Account is the state object stored at every leaf of the account trie.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash // root of the account's storage trie
	CodeHash    common.Hash
	AbiHash     common.Hash
}

// NewEmptyAccount has no code, no abi and an empty storage trie.
func NewEmptyAccount() *Account {
	return &Account{
		Balance:     new(uint256.Int),
		StorageRoot: common.EmptyRootHash,
		CodeHash:    common.NilDataHash,
		AbiHash:     common.NilDataHash,
	}
}

func DecodeAccount(data []byte) (*Account, error) {
	acc := new(Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, fmt.Errorf("decode account: %v: %w", err, operrors.ErrCorruptTrie)
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	return acc, nil
}

func (a *Account) Encode() []byte {
	return mustEncode(a)
}

func (a *Account) HasCode() bool { return !common.IsEmptyCode(a.CodeHash) }

func (a *Account) HasAbi() bool { return !common.IsEmptyCode(a.AbiHash) }

func (a *Account) HasStorage() bool { return !common.IsEmptyRoot(a.StorageRoot) }
