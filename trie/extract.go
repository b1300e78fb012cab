package trie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/storage"
)

// Stats counts what an extraction copied.
type Stats struct {
	Nodes        int // account trie nodes
	Accounts     int
	Blobs        int // code and abi blobs
	StorageNodes int
}

func (s Stats) String() string {
	return fmt.Sprintf("nodes=%d accounts=%d blobs=%d storage_nodes=%d", s.Nodes, s.Accounts, s.Blobs, s.StorageNodes)
}

// Extractor copies the part of a node store reachable from one state root: the account
// trie, every account's storage trie, and the code and abi blobs accounts reference.
// Nothing else in the source is copied.
type Extractor struct {
	src NodeStore
	dst NodeStore
}

func NewExtractor(src NodeStore, dst NodeStore) *Extractor {
	return &Extractor{src: src, dst: dst}
}

type leaf struct {
	key   []byte
	value []byte
}

type frame struct {
	ref  Ref
	path []byte
}

// Extract copies the state reachable from root. Accounts are processed in address
// order so two extractions of the same root write the same sequence.
func (e *Extractor) Extract(ctx context.Context, root common.Hash) (Stats, error) {
	var stats Stats
	if common.IsEmptyRoot(root) {
		return stats, nil
	}

	var leaves []leaf
	nodes, err := copyTrie(e.src, e.dst, root, func(path []byte, value []byte) {
		leaves = append(leaves, leaf{key: path, value: value})
	})
	if err != nil {
		return stats, fmt.Errorf("account trie %x: %w", root, err)
	}
	stats.Nodes = nodes

	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i].key, leaves[j].key) < 0 })
	for _, l := range leaves {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		key, err := NibblesToKey(l.key)
		if err != nil {
			return stats, err
		}
		if len(key) != common.AddressLength {
			return stats, fmt.Errorf("account key %x is %d bytes: %w", key, len(key), operrors.ErrCorruptTrie)
		}
		addr := common.BytesToAddress(key)
		acc, err := DecodeAccount(l.value)
		if err != nil {
			return stats, fmt.Errorf("account %x: %w", addr, err)
		}
		blobs, storageNodes, err := e.extractAccount(addr, acc)
		if err != nil {
			return stats, err
		}
		stats.Accounts++
		stats.Blobs += blobs
		stats.StorageNodes += storageNodes
		log.Trace(log.TrieMonitoring, "extracted account", "addr", addr, "blobs", blobs, "storageNodes", storageNodes)
	}

	log.Info(log.TrieMonitoring, "extracted state", "root", root, "stats", stats.String())
	return stats, nil
}

func (e *Extractor) extractAccount(addr common.Address, acc *Account) (blobs int, storageNodes int, err error) {
	src := ScopedStore(e.src, addr)
	dst := ScopedStore(e.dst, addr)

	var hashes []common.Hash
	if acc.HasCode() {
		hashes = append(hashes, acc.CodeHash)
	}
	if acc.HasAbi() {
		hashes = append(hashes, acc.AbiHash)
	}
	for _, h := range hashes {
		blob, err := src.Get(h.Bytes())
		if errors.Is(err, storage.ErrNotFound) {
			return 0, 0, fmt.Errorf("account %x blob %x: %w", addr, h, operrors.ErrMissingBlob)
		}
		if err != nil {
			return 0, 0, err
		}
		if err := dst.Put(h.Bytes(), blob); err != nil {
			return 0, 0, err
		}
		blobs++
	}

	if !acc.HasStorage() {
		return blobs, 0, nil
	}
	storageNodes, err = copyTrie(src, dst, acc.StorageRoot, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("account %x storage trie %x: %w", addr, acc.StorageRoot, err)
	}
	return blobs, storageNodes, nil
}

// copyTrie walks the trie under root depth first with an explicit stack, copying every
// hash-referenced node from src to dst once. When onLeaf is set, every value is
// reported with its full nibble path, including values under shared subtrees.
func copyTrie(src NodeStore, dst NodeStore, root common.Hash, onLeaf func(path []byte, value []byte)) (int, error) {
	seen := make(map[common.Hash]*Node)
	copied := 0
	stack := []frame{{ref: Ref{Hash: root, present: true}}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := f.ref.Embedded
		if f.ref.IsHash() {
			cached, ok := seen[f.ref.Hash]
			switch {
			case ok && onLeaf == nil:
				continue
			case ok:
				n = cached
			default:
				var err error
				n, err = copyNode(src, dst, f.ref.Hash)
				if err != nil {
					return copied, err
				}
				copied++
				if onLeaf != nil {
					seen[f.ref.Hash] = n
				} else {
					seen[f.ref.Hash] = nil
				}
			}
		}

		if onLeaf != nil {
			switch {
			case n.Kind == NodeLeaf:
				onLeaf(joinPath(f.path, n.Path), n.Value)
			case n.Kind == NodeBranch && len(n.Value) > 0:
				onLeaf(joinPath(f.path, nil), n.Value)
			}
		}
		// pushed in reverse so children pop in nibble order
		refs := n.Refs()
		for i := len(refs) - 1; i >= 0; i-- {
			stack = append(stack, frame{ref: refs[i].Ref, path: joinPath(f.path, refs[i].Path)})
		}
	}
	return copied, nil
}

func copyNode(src NodeStore, dst NodeStore, hash common.Hash) (*Node, error) {
	enc, err := src.Get(hash.Bytes())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("missing node %x: %w", hash, operrors.ErrCorruptTrie)
	}
	if err != nil {
		return nil, err
	}
	if HashNode(enc) != hash {
		return nil, fmt.Errorf("node %x hashes to %x: %w", hash, HashNode(enc), operrors.ErrCorruptTrie)
	}
	n, err := DecodeNode(enc)
	if err != nil {
		return nil, fmt.Errorf("node %x: %w", hash, err)
	}
	if err := dst.Put(hash.Bytes(), enc); err != nil {
		return nil, err
	}
	return n, nil
}

func joinPath(a []byte, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
