package chain

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the node's protobuf messages.
const (
	fieldHeaderPrevhash         protowire.Number = 1
	fieldHeaderTimestamp        protowire.Number = 2
	fieldHeaderHeight           protowire.Number = 3
	fieldHeaderTransactionsRoot protowire.Number = 4
	fieldHeaderProposer         protowire.Number = 5

	fieldBlockVersion   protowire.Number = 1
	fieldBlockHeader    protowire.Number = 2
	fieldBlockBody      protowire.Number = 3
	fieldBlockProof     protowire.Number = 4
	fieldBlockStateRoot protowire.Number = 5

	fieldBodyItems protowire.Number = 1

	fieldRawNormal protowire.Number = 1
	fieldRawUtxo   protowire.Number = 2

	fieldUnverifiedTransaction protowire.Number = 1
	fieldUnverifiedHash        protowire.Number = 2
	fieldUnverifiedWitnesses   protowire.Number = 3

	fieldUtxoVersion   protowire.Number = 1
	fieldUtxoPreTxHash protowire.Number = 2
	fieldUtxoOutput    protowire.Number = 3
	fieldUtxoLockId    protowire.Number = 4
)

func malformed(what string, err error) error {
	return fmt.Errorf("decode %s: %v: %w", what, err, operrors.ErrIO)
}

// field is one decoded protobuf field; bytes fields fill v, varint fields fill x.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   []byte
	x   uint64
}

// walk visits every field of a message in wire order. Unknown wire types are skipped.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.x, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessage always emits the field, so an empty but present submessage survives a round trip.
func appendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func EncodeHeader(h *BlockHeader) []byte {
	if h == nil {
		return nil
	}
	var b []byte
	b = appendBytes(b, fieldHeaderPrevhash, h.Prevhash)
	b = appendVarint(b, fieldHeaderTimestamp, h.Timestamp)
	b = appendVarint(b, fieldHeaderHeight, h.Height)
	b = appendBytes(b, fieldHeaderTransactionsRoot, h.TransactionsRoot)
	b = appendBytes(b, fieldHeaderProposer, h.Proposer)
	return b
}

func DecodeHeader(data []byte) (*BlockHeader, error) {
	h := &BlockHeader{}
	err := walk(data, func(f field) error {
		switch {
		case f.num == fieldHeaderPrevhash && f.typ == protowire.BytesType:
			h.Prevhash = common.CopyBytes(f.v)
		case f.num == fieldHeaderTimestamp && f.typ == protowire.VarintType:
			h.Timestamp = f.x
		case f.num == fieldHeaderHeight && f.typ == protowire.VarintType:
			h.Height = f.x
		case f.num == fieldHeaderTransactionsRoot && f.typ == protowire.BytesType:
			h.TransactionsRoot = common.CopyBytes(f.v)
		case f.num == fieldHeaderProposer && f.typ == protowire.BytesType:
			h.Proposer = common.CopyBytes(f.v)
		}
		return nil
	})
	if err != nil {
		return nil, malformed("block header", err)
	}
	return h, nil
}

func EncodeCompactBlock(cb *CompactBlock) []byte {
	var b []byte
	b = appendVarint(b, fieldBlockVersion, uint64(cb.Version))
	if cb.Header != nil {
		b = appendMessage(b, fieldBlockHeader, EncodeHeader(cb.Header))
	}
	var body []byte
	for _, h := range cb.TxHashes {
		body = appendMessage(body, fieldBodyItems, h)
	}
	return appendMessage(b, fieldBlockBody, body)
}

func DecodeCompactBlock(data []byte) (*CompactBlock, error) {
	cb := &CompactBlock{}
	err := walk(data, func(f field) error {
		switch {
		case f.num == fieldBlockVersion && f.typ == protowire.VarintType:
			cb.Version = uint32(f.x)
		case f.num == fieldBlockHeader && f.typ == protowire.BytesType:
			h, err := DecodeHeader(f.v)
			if err != nil {
				return err
			}
			cb.Header = h
		case f.num == fieldBlockBody && f.typ == protowire.BytesType:
			return walk(f.v, func(item field) error {
				if item.num == fieldBodyItems && item.typ == protowire.BytesType {
					cb.TxHashes = append(cb.TxHashes, common.CopyBytes(item.v))
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, malformed("compact block", err)
	}
	return cb, nil
}

func EncodeBlock(blk *Block) []byte {
	var b []byte
	b = appendVarint(b, fieldBlockVersion, uint64(blk.Version))
	if blk.Header != nil {
		b = appendMessage(b, fieldBlockHeader, EncodeHeader(blk.Header))
	}
	var body []byte
	for _, tx := range blk.Body {
		body = appendMessage(body, fieldBodyItems, EncodeRawTransaction(tx))
	}
	b = appendMessage(b, fieldBlockBody, body)
	b = appendBytes(b, fieldBlockProof, blk.Proof)
	b = appendBytes(b, fieldBlockStateRoot, blk.StateRoot)
	return b
}

func DecodeBlock(data []byte) (*Block, error) {
	blk := &Block{}
	err := walk(data, func(f field) error {
		switch {
		case f.num == fieldBlockVersion && f.typ == protowire.VarintType:
			blk.Version = uint32(f.x)
		case f.num == fieldBlockHeader && f.typ == protowire.BytesType:
			h, err := DecodeHeader(f.v)
			if err != nil {
				return err
			}
			blk.Header = h
		case f.num == fieldBlockBody && f.typ == protowire.BytesType:
			return walk(f.v, func(item field) error {
				if item.num != fieldBodyItems || item.typ != protowire.BytesType {
					return nil
				}
				tx, err := DecodeRawTransaction(item.v)
				if err != nil {
					return err
				}
				blk.Body = append(blk.Body, tx)
				return nil
			})
		case f.num == fieldBlockProof && f.typ == protowire.BytesType:
			blk.Proof = common.CopyBytes(f.v)
		case f.num == fieldBlockStateRoot && f.typ == protowire.BytesType:
			blk.StateRoot = common.CopyBytes(f.v)
		}
		return nil
	})
	if err != nil {
		return nil, malformed("block", err)
	}
	return blk, nil
}

func EncodeUtxoTransaction(tx *UtxoTransaction) []byte {
	var b []byte
	b = appendVarint(b, fieldUtxoVersion, uint64(tx.Version))
	b = appendBytes(b, fieldUtxoPreTxHash, tx.PreTxHash)
	b = appendBytes(b, fieldUtxoOutput, tx.Output)
	b = appendVarint(b, fieldUtxoLockId, tx.LockId)
	return b
}

func decodeUtxoTransaction(data []byte) (*UtxoTransaction, error) {
	tx := &UtxoTransaction{}
	err := walk(data, func(f field) error {
		switch {
		case f.num == fieldUtxoVersion && f.typ == protowire.VarintType:
			tx.Version = uint32(f.x)
		case f.num == fieldUtxoPreTxHash && f.typ == protowire.BytesType:
			tx.PreTxHash = common.CopyBytes(f.v)
		case f.num == fieldUtxoOutput && f.typ == protowire.BytesType:
			tx.Output = common.CopyBytes(f.v)
		case f.num == fieldUtxoLockId && f.typ == protowire.VarintType:
			tx.LockId = f.x
		}
		return nil
	})
	return tx, err
}

func encodeUtxoTx(tx *UtxoTx) []byte {
	var b []byte
	if tx.Transaction != nil {
		b = appendMessage(b, fieldUnverifiedTransaction, EncodeUtxoTransaction(tx.Transaction))
	}
	b = appendBytes(b, fieldUnverifiedHash, tx.TransactionHash)
	for _, w := range tx.Witnesses {
		b = appendMessage(b, fieldUnverifiedWitnesses, w)
	}
	return b
}

func decodeUtxoTx(data []byte) (*UtxoTx, error) {
	tx := &UtxoTx{}
	err := walk(data, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		switch f.num {
		case fieldUnverifiedTransaction:
			inner, err := decodeUtxoTransaction(f.v)
			if err != nil {
				return err
			}
			tx.Transaction = inner
		case fieldUnverifiedHash:
			tx.TransactionHash = common.CopyBytes(f.v)
		case fieldUnverifiedWitnesses:
			tx.Witnesses = append(tx.Witnesses, common.CopyBytes(f.v))
		}
		return nil
	})
	return tx, err
}

func EncodeRawTransaction(tx *RawTransaction) []byte {
	switch {
	case tx.Utxo != nil:
		return appendMessage(nil, fieldRawUtxo, encodeUtxoTx(tx.Utxo))
	case tx.Normal != nil:
		return appendMessage(nil, fieldRawNormal, tx.Normal.Raw)
	}
	return nil
}

func DecodeRawTransaction(data []byte) (*RawTransaction, error) {
	tx := &RawTransaction{}
	err := walk(data, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}
		switch f.num {
		case fieldRawNormal:
			normal := &NormalTx{Raw: common.CopyBytes(f.v)}
			if err := walk(f.v, func(inner field) error {
				if inner.num == fieldUnverifiedHash && inner.typ == protowire.BytesType {
					normal.TransactionHash = common.CopyBytes(inner.v)
				}
				return nil
			}); err != nil {
				return err
			}
			tx.Normal, tx.Utxo = normal, nil
		case fieldRawUtxo:
			utxo, err := decodeUtxoTx(f.v)
			if err != nil {
				return err
			}
			tx.Utxo, tx.Normal = utxo, nil
		}
		return nil
	})
	if err != nil {
		return nil, malformed("raw transaction", err)
	}
	return tx, nil
}

// NewNormalTx wraps an opaque normal transaction body whose envelope carries hash.
func NewNormalTx(payload []byte, hash []byte) *RawTransaction {
	var raw []byte
	raw = appendMessage(raw, fieldUnverifiedTransaction, payload)
	raw = appendBytes(raw, fieldUnverifiedHash, hash)
	return &RawTransaction{Normal: &NormalTx{Raw: raw, TransactionHash: common.CopyBytes(hash)}}
}

// NewUtxoTx builds a utxo transaction envelope.
func NewUtxoTx(hash []byte, preTxHash []byte, lockID uint64, output []byte) *RawTransaction {
	return &RawTransaction{Utxo: &UtxoTx{
		Transaction: &UtxoTransaction{
			PreTxHash: common.CopyBytes(preTxHash),
			Output:    common.CopyBytes(output),
			LockId:    lockID,
		},
		TransactionHash: common.CopyBytes(hash),
	}}
}
