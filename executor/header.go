package executor

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/ethereum/go-ethereum/rlp"
)

// Header is the executor's block header.
type Header struct {
	ParentHash       common.Hash
	Timestamp        uint64
	Number           uint64
	Author           common.Address
	TransactionsRoot common.Hash
	StateRoot        common.Hash
	ReceiptsRoot     common.Hash
	QuotaUsed        uint64
}

func DecodeHeader(data []byte) (*Header, error) {
	h := new(Header)
	if err := rlp.DecodeBytes(data, h); err != nil {
		return nil, fmt.Errorf("decode header: %v: %w", err, operrors.ErrIO)
	}
	return h, nil
}

func (h *Header) Encode() []byte {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(fmt.Sprintf("executor: rlp encode header: %v", err))
	}
	return enc
}

// Hash is keccak256 of the RLP encoding.
func (h *Header) Hash() common.Hash {
	return common.Keccak256(h.Encode())
}
