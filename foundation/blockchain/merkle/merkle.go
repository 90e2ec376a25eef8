// Package merkle provides a binary hash tree over an ordered list of values
// for integrity verification of block transactions.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree over data of some type T that exhibits the
// behavior defined by the Hashable constraint. The tree keeps every level of
// hashes, leaves first, so membership proofs can be produced without walking
// a node graph.
type Tree[T Hashable[T]] struct {
	MerkleRoot   []byte
	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a merkle tree from the ordered list of values.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the levels of the tree from the specified data. If the
// tree was generated previously, it is re-generated from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	leaves := make([][]byte, 0, len(values)+1)
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leaves = append(leaves, hash)
	}

	// A level with an odd number of nodes duplicates its last node so
	// every node has a sibling to pair with.
	levels := [][][]byte{leaves}
	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
			levels[len(levels)-1] = level
		}

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, t.combine(level[i], level[i+1]))
		}

		levels = append(levels, next)
		level = next
	}

	t.values = values
	t.levels = levels
	t.MerkleRoot = level[0]

	return nil
}

// Verify recomputes the hashes at each level of the tree and reports whether
// the stored root still matches the stored values.
func (t *Tree[T]) Verify() error {
	rebuilt, err := NewTree(t.values, WithHashStrategy[T](t.hashStrategy))
	if err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, rebuilt.MerkleRoot) {
		return errors.New("merkle root invalid")
	}

	return nil
}

// Proof returns the sibling hashes and the concatenation order for proving
// the specified value is in the tree. Order 0 means the proof hash is
// concatenated first, order 1 second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx := -1
	for i, value := range t.values {
		if value.Equals(data) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil, errors.New("unable to find data in tree")
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}

		proof = append(proof, level[sibling])
		if idx%2 == 0 {
			order = append(order, 1)
		} else {
			order = append(order, 0)
		}

		idx /= 2
	}

	return proof, order, nil
}

// VerifyProof replays a membership proof against the tree root.
func (t *Tree[T]) VerifyProof(data T, proof [][]byte, order []int64) error {
	if len(proof) != len(order) {
		return errors.New("proof and order lengths differ")
	}

	cur, err := data.Hash()
	if err != nil {
		return err
	}

	for i, sibling := range proof {
		if order[i] == 0 {
			cur = t.combine(sibling, cur)
		} else {
			cur = t.combine(cur, sibling)
		}
	}

	if !bytes.Equal(cur, t.MerkleRoot) {
		return errors.New("proof does not produce the merkle root")
	}

	return nil
}

// Values returns the ordered values stored in the tree.
func (t *Tree[T]) Values() []T {
	return t.values
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// combine hashes the concatenation of two child hashes.
func (t *Tree[T]) combine(left, right []byte) []byte {
	h := t.hashStrategy()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
