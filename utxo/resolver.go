package utxo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/colorfulnotion/cloudop/chain"
	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
	"golang.org/x/sync/errgroup"
)

// Action is what resolving one lock slot did.
type Action int

const (
	// Kept: the slot already referenced a transaction at or below the target.
	Kept Action = iota
	// Rewritten: the slot now references an older transaction of its chain.
	Rewritten
	// Deleted: no transaction of the chain survives, the slot is back to genesis.
	Deleted
	// Skipped: the slot holds genesis data rather than a tx hash.
	Skipped
	// Absent: the slot was never written.
	Absent
)

func (a Action) String() string {
	switch a {
	case Kept:
		return "kept"
	case Rewritten:
		return "rewritten"
	case Deleted:
		return "deleted"
	case Skipped:
		return "skipped"
	case Absent:
		return "absent"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Outcome reports one lock slot. TxHash is the slot's value afterwards.
type Outcome struct {
	LockID uint64
	Action Action
	TxHash []byte
	Hops   int
}

// Resolver rewinds UTXO lock slots so each references the newest transaction of its
// chain whose height is at or below a target.
type Resolver struct {
	backend     storage.Backend
	schema      Schema
	concurrency int
}

func NewResolver(backend storage.Backend, schema Schema, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{backend: backend, schema: schema, concurrency: concurrency}
}

// ResolveAll resolves every lock id of the schema. Lock chains are disjoint, so ids
// are resolved concurrently; the first error cancels the rest.
func (r *Resolver) ResolveAll(ctx context.Context, target uint64) ([]Outcome, error) {
	ids := r.schema.LockIDs()
	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			out, err := r.Resolve(gctx, id, target)
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].LockID < outcomes[j].LockID })
	return outcomes, nil
}

// Resolve walks one lock chain backwards from its slot until it reaches a transaction
// at or below target or the genesis sentinel. The slot is written only when it changes.
func (r *Resolver) Resolve(ctx context.Context, lockID uint64, target uint64) (Outcome, error) {
	out := Outcome{LockID: lockID}
	slotKey := storage.HeightKey(lockID)

	txHash, err := r.backend.Load(ctx, storage.Global, slotKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn(log.UtxoMonitoring, "lock slot not found, new chain or data older than v6.3.2", "lockID", lockID)
		out.Action = Absent
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("lock %d: %w", lockID, err)
	}
	if len(txHash) != r.schema.HashLen || lockID == r.schema.LockChainID {
		log.Debug(log.UtxoMonitoring, "lock never changed from genesis", "lockID", lockID)
		out.Action = Skipped
		out.TxHash = txHash
		return out, nil
	}

	visited := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, ok := visited[string(txHash)]; ok {
			return out, fmt.Errorf("lock %d: cycle at tx %x: %w", lockID, txHash, operrors.ErrIO)
		}
		visited[string(txHash)] = struct{}{}

		height, err := r.txHeight(ctx, txHash)
		if err != nil {
			return out, fmt.Errorf("lock %d: %w", lockID, err)
		}
		if height <= target {
			out.TxHash = txHash
			if out.Hops == 0 {
				out.Action = Kept
				log.Debug(log.UtxoMonitoring, "lock kept", "lockID", lockID, "tx", common.Bytes2Hex(txHash))
				return out, nil
			}
			if err := r.backend.Store(ctx, storage.Global, slotKey, txHash); err != nil {
				return out, fmt.Errorf("lock %d: %w", lockID, err)
			}
			out.Action = Rewritten
			log.Info(log.UtxoMonitoring, "lock rewritten", "lockID", lockID, "tx", common.Bytes2Hex(txHash), "hops", out.Hops)
			return out, nil
		}

		preTxHash, err := r.preTxHash(ctx, lockID, txHash)
		if err != nil {
			return out, err
		}
		if r.schema.IsSentinel(preTxHash) {
			if err := r.backend.Delete(ctx, storage.Global, slotKey); err != nil {
				return out, fmt.Errorf("lock %d: %w", lockID, err)
			}
			out.Action = Deleted
			out.TxHash = nil
			log.Info(log.UtxoMonitoring, "lock reset to genesis", "lockID", lockID, "hops", out.Hops)
			return out, nil
		}
		txHash = preTxHash
		out.Hops++
	}
}

func (r *Resolver) txHeight(ctx context.Context, txHash []byte) (uint64, error) {
	raw, err := r.backend.Load(ctx, storage.TransactionHash2BlockHeight, txHash)
	if err != nil {
		return 0, fmt.Errorf("height of tx %x: %w", txHash, err)
	}
	h, err := common.BytesToUint64(raw)
	if err != nil {
		return 0, fmt.Errorf("height of tx %x: %v: %w", txHash, err, operrors.ErrIO)
	}
	return h, nil
}

func (r *Resolver) preTxHash(ctx context.Context, lockID uint64, txHash []byte) ([]byte, error) {
	raw, err := r.backend.Load(ctx, storage.Transactions, txHash)
	if err != nil {
		return nil, fmt.Errorf("lock %d tx %x: %w", lockID, txHash, err)
	}
	tx, err := chain.DecodeRawTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("lock %d tx %x: %w", lockID, txHash, err)
	}
	if !tx.IsUtxo() {
		return nil, fmt.Errorf("lock %d tx %x: %w", lockID, txHash, operrors.ErrNotUtxoTransaction)
	}
	return tx.Utxo.Transaction.PreTxHash, nil
}
