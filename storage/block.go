package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/cloudop/chain"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
)

// loadFullBlock rebuilds the encoded block at height. Proof and state root are optional;
// genesis carries neither.
func loadFullBlock(ctx context.Context, b Backend, height uint64) ([]byte, error) {
	hk := HeightKey(height)
	raw, err := b.Load(ctx, CompactBlock, hk)
	if err != nil {
		return nil, fmt.Errorf("compact block %d: %w", height, err)
	}
	cb, err := chain.DecodeCompactBlock(raw)
	if err != nil {
		return nil, err
	}

	blk := &chain.Block{Version: cb.Version, Header: cb.Header}
	for _, txHash := range cb.TxHashes {
		rawTx, err := b.Load(ctx, Transactions, txHash)
		if err != nil {
			return nil, fmt.Errorf("block %d tx %x: %w", height, txHash, err)
		}
		tx, err := chain.DecodeRawTransaction(rawTx)
		if err != nil {
			return nil, err
		}
		blk.Body = append(blk.Body, tx)
	}
	if blk.Proof, err = loadOptional(ctx, b, Proof, hk); err != nil {
		return nil, err
	}
	if blk.StateRoot, err = loadOptional(ctx, b, Result, hk); err != nil {
		return nil, err
	}
	return chain.EncodeBlock(blk), nil
}

func loadOptional(ctx context.Context, b Backend, region Region, key []byte) ([]byte, error) {
	v, err := b.Load(ctx, region, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return v, err
}

type regionKV struct {
	region Region
	key    []byte
	value  []byte
}

// storeAllBlockData writes the block indexes, then the transactions, then the current
// height (and hash, when hash-chained) so an interrupted write never advances the ledger.
func storeAllBlockData(ctx context.Context, b Backend, hashLen int, height uint64, hashAndBlock []byte) error {
	if len(hashAndBlock) < hashLen {
		return fmt.Errorf("block data at %d is %d bytes, shorter than the hash: %w", height, len(hashAndBlock), operrors.ErrIO)
	}
	hash := hashAndBlock[:hashLen]
	blk, err := chain.DecodeBlock(hashAndBlock[hashLen:])
	if err != nil {
		return err
	}
	hk := HeightKey(height)

	puts := []regionKV{
		{BlockHash, hk, hash},
		{BlockHash2BlockHeight, hash, hk},
		{CompactBlock, hk, chain.EncodeCompactBlock(blk.Compact())},
	}
	if len(blk.Proof) > 0 {
		puts = append(puts, regionKV{Proof, hk, blk.Proof})
	}
	if len(blk.StateRoot) > 0 {
		puts = append(puts, regionKV{Result, hk, blk.StateRoot})
	}
	for _, p := range puts {
		if err := b.Store(ctx, p.region, p.key, p.value); err != nil {
			return err
		}
	}

	for i, tx := range blk.Body {
		txHash := tx.Hash()
		if err := b.Store(ctx, Transactions, txHash, chain.EncodeRawTransaction(tx)); err != nil {
			return err
		}
		if err := b.Store(ctx, TransactionHash2BlockHeight, txHash, hk); err != nil {
			return err
		}
		if err := b.Store(ctx, TransactionIndex, txHash, HeightKey(uint64(i))); err != nil {
			return err
		}
	}

	if err := b.Store(ctx, Global, HeightKey(KeyCurrentHeight), hk); err != nil {
		return err
	}
	if b.Kind().HashChained() {
		if err := b.Store(ctx, Global, HeightKey(KeyCurrentHash), hash); err != nil {
			return err
		}
	}
	log.Trace(log.StorageMonitoring, "stored block", "height", height, "txs", len(blk.Body))
	return nil
}
