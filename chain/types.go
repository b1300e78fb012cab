package chain

import (
	"github.com/colorfulnotion/cloudop/common"
)

// BlockHeader is the header shared by full and compact blocks. Prevhash is the hash
// of the block at Height-1, which is what lets a rollback recover the current hash
// without recomputing it.
type BlockHeader struct {
	Prevhash         []byte
	Timestamp        uint64
	Height           uint64
	TransactionsRoot []byte
	Proposer         []byte
}

// CompactBlock references its transactions by hash; bodies live in the Transactions region.
type CompactBlock struct {
	Version  uint32
	Header   *BlockHeader
	TxHashes [][]byte
}

type Block struct {
	Version   uint32
	Header    *BlockHeader
	Body      []*RawTransaction
	Proof     []byte
	StateRoot []byte
}

// UtxoTransaction updates the value held by a lock slot. PreTxHash is the transaction
// that last modified the same lock, or the genesis sentinel.
type UtxoTransaction struct {
	Version   uint32
	PreTxHash []byte
	Output    []byte
	LockId    uint64
}

type UtxoTx struct {
	Transaction     *UtxoTransaction
	TransactionHash []byte
	Witnesses       [][]byte
}

// NormalTx is carried opaque: the tool never interprets normal transactions, it only
// needs their hash to index them.
type NormalTx struct {
	Raw             []byte
	TransactionHash []byte
}

// RawTransaction is the oneof of a normal and a utxo transaction; exactly one is set.
type RawTransaction struct {
	Normal *NormalTx
	Utxo   *UtxoTx
}

func (tx *RawTransaction) IsUtxo() bool {
	return tx != nil && tx.Utxo != nil && tx.Utxo.Transaction != nil
}

// Hash returns the transaction hash carried in the envelope.
func (tx *RawTransaction) Hash() []byte {
	switch {
	case tx == nil:
		return nil
	case tx.Utxo != nil:
		return tx.Utxo.TransactionHash
	case tx.Normal != nil:
		return tx.Normal.TransactionHash
	}
	return nil
}

// Compact drops the transaction bodies, keeping their hashes in order.
func (b *Block) Compact() *CompactBlock {
	hashes := make([][]byte, 0, len(b.Body))
	for _, tx := range b.Body {
		hashes = append(hashes, common.CopyBytes(tx.Hash()))
	}
	return &CompactBlock{
		Version:  b.Version,
		Header:   b.Header,
		TxHashes: hashes,
	}
}

func (b *Block) Height() uint64 {
	if b.Header == nil {
		return 0
	}
	return b.Header.Height
}
