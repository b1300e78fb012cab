package trie

import (
	"fmt"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/ethereum/go-ethereum/rlp"
)

// NodeKind discriminates the three kinds of trie nodes.
type NodeKind int

const (
	NodeLeaf NodeKind = iota
	NodeExtension
	NodeBranch
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeExtension:
		return "extension"
	case NodeBranch:
		return "branch"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Ref is a child reference: empty, a hash to look up, or a node embedded in its parent
// because its encoding is shorter than a hash.
type Ref struct {
	Hash     common.Hash
	Embedded *Node
	present  bool
}

func (r Ref) IsEmpty() bool { return !r.present }

func (r Ref) IsHash() bool { return r.present && r.Embedded == nil }

// Node is a decoded trie node. Path holds nibbles for leaves and extensions.
type Node struct {
	Kind     NodeKind
	Path     []byte
	Value    []byte
	Child    Ref
	Children [16]Ref
}

// ChildRef is a child reference with the nibbles consumed to reach it.
type ChildRef struct {
	Path []byte
	Ref  Ref
}

// Refs lists the non-empty child references in nibble order.
func (n *Node) Refs() []ChildRef {
	switch n.Kind {
	case NodeExtension:
		return []ChildRef{{Path: n.Path, Ref: n.Child}}
	case NodeBranch:
		out := make([]ChildRef, 0, 16)
		for i, c := range n.Children {
			if !c.IsEmpty() {
				out = append(out, ChildRef{Path: []byte{byte(i)}, Ref: c})
			}
		}
		return out
	}
	return nil
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), operrors.ErrCorruptTrie)
}

// DecodeNode parses an RLP encoded node.
func DecodeNode(buf []byte) (*Node, error) {
	elems, rest, err := rlp.SplitList(buf)
	if err != nil {
		return nil, corrupt("node: %v", err)
	}
	if len(rest) != 0 {
		return nil, corrupt("node: %d trailing bytes", len(rest))
	}
	count, err := rlp.CountValues(elems)
	if err != nil {
		return nil, corrupt("node: %v", err)
	}
	switch count {
	case 2:
		return decodeShort(elems)
	case 17:
		return decodeFull(elems)
	}
	return nil, corrupt("node: invalid number of list elements %d", count)
}

func decodeShort(elems []byte) (*Node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, corrupt("short node key: %v", err)
	}
	path, leaf, err := compactToNibbles(kbuf)
	if err != nil {
		return nil, err
	}
	if leaf {
		val, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, corrupt("leaf value: %v", err)
		}
		return &Node{Kind: NodeLeaf, Path: path, Value: common.CopyBytes(val)}, nil
	}
	child, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	if child.IsEmpty() {
		return nil, corrupt("extension without child")
	}
	return &Node{Kind: NodeExtension, Path: path, Child: child}, nil
}

func decodeFull(elems []byte) (*Node, error) {
	n := &Node{Kind: NodeBranch}
	var err error
	for i := 0; i < 16; i++ {
		n.Children[i], elems, err = decodeRef(elems)
		if err != nil {
			return nil, err
		}
	}
	val, _, err := rlp.SplitString(elems)
	if err != nil {
		return nil, corrupt("branch value: %v", err)
	}
	if len(val) > 0 {
		n.Value = common.CopyBytes(val)
	}
	return n, nil
}

func decodeRef(buf []byte) (Ref, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return Ref{}, nil, corrupt("child: %v", err)
	}
	switch {
	case kind == rlp.List:
		size := len(buf) - len(rest)
		if size >= common.HashLength {
			return Ref{}, nil, corrupt("oversized embedded node (%d bytes)", size)
		}
		n, err := DecodeNode(buf[:size])
		if err != nil {
			return Ref{}, nil, err
		}
		return Ref{Embedded: n, present: true}, rest, nil
	case kind == rlp.String && len(val) == 0:
		return Ref{}, rest, nil
	case kind == rlp.String && len(val) == common.HashLength:
		return Ref{Hash: common.BytesToHash(val), present: true}, rest, nil
	}
	return Ref{}, nil, corrupt("invalid child reference of %d bytes", len(val))
}

// compactToNibbles decodes hex-prefix encoding. The flag nibble is 0/1 for extensions
// and 2/3 for leaves; odd flags carry the first path nibble in the low half.
func compactToNibbles(compact []byte) ([]byte, bool, error) {
	if len(compact) == 0 {
		return nil, false, corrupt("empty hex-prefix key")
	}
	flag := compact[0] >> 4
	if flag > 3 {
		return nil, false, corrupt("hex-prefix flag %d", flag)
	}
	leaf := flag&2 != 0
	nibbles := make([]byte, 0, len(compact)*2)
	if flag&1 != 0 {
		nibbles = append(nibbles, compact[0]&0x0f)
	}
	for _, b := range compact[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, leaf, nil
}

func nibblesToCompact(nibbles []byte, leaf bool) []byte {
	var flag byte
	if leaf {
		flag = 2
	}
	out := make([]byte, len(nibbles)/2+1)
	if len(nibbles)%2 == 1 {
		out[0] = (flag|1)<<4 | nibbles[0]
		nibbles = nibbles[1:]
	} else {
		out[0] = flag << 4
	}
	for i := 0; i < len(nibbles); i += 2 {
		out[i/2+1] = nibbles[i]<<4 | nibbles[i+1]
	}
	return out
}

// KeyToNibbles splits every byte into its high and low nibble.
func KeyToNibbles(key []byte) []byte {
	out := make([]byte, 0, len(key)*2)
	for _, b := range key {
		out = append(out, b>>4, b&0x0f)
	}
	return out
}

// NibblesToKey packs an even number of nibbles back into bytes.
func NibblesToKey(nibbles []byte) ([]byte, error) {
	if len(nibbles)%2 != 0 {
		return nil, corrupt("odd key length %d nibbles", len(nibbles))
	}
	out := make([]byte, len(nibbles)/2)
	for i := range out {
		out[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return out, nil
}

// HashNode is the key a node is stored under.
func HashNode(enc []byte) common.Hash {
	return common.Keccak256(enc)
}

// childRef embeds encodings shorter than a hash and references the rest by hash.
func childRef(enc []byte) interface{} {
	if len(enc) == 0 {
		return []byte{}
	}
	if len(enc) < common.HashLength {
		return rlp.RawValue(enc)
	}
	return HashNode(enc)
}

func mustEncode(v interface{}) []byte {
	enc, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(fmt.Sprintf("trie: rlp encode: %v", err))
	}
	return enc
}

// EncodeLeaf encodes a leaf whose remaining path is nibbles.
func EncodeLeaf(nibbles []byte, value []byte) []byte {
	return mustEncode([]interface{}{nibblesToCompact(nibbles, true), value})
}

// EncodeExtension encodes an extension over the encoded child node.
func EncodeExtension(nibbles []byte, child []byte) []byte {
	return mustEncode([]interface{}{nibblesToCompact(nibbles, false), childRef(child)})
}

// EncodeBranch encodes a branch over the encoded children; nil entries are empty slots.
func EncodeBranch(children [16][]byte, value []byte) []byte {
	items := make([]interface{}, 17)
	for i, c := range children {
		items[i] = childRef(c)
	}
	if value == nil {
		value = []byte{}
	}
	items[16] = value
	return mustEncode(items)
}
