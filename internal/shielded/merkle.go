// merkle.go - Zero-subtree hashes and Merkle path arithmetic.
//
// The remote tree has depth 26; empty leaves are 0 and every empty subtree
// hashes to Poseidon(z, z) of the level below.

package shielded

import (
	"fmt"
	"math/big"
	"sync"
)

// TreeDepth is the height of the commitment tree.
const TreeDepth = 26

// TreeState is the authoritative root and next free leaf index.
type TreeState struct {
	Root      *big.Int
	NextIndex uint64
}

// MerklePath authenticates one leaf. PathIndices holds the direction bits
// from leaf to root (1 = leaf is the right child).
type MerklePath struct {
	PathElements []*big.Int
	PathIndices  []uint8
}

var zeros = sync.OnceValues(func() ([]*big.Int, error) {
	z := make([]*big.Int, TreeDepth+1)
	z[0] = new(big.Int)
	for i := 1; i <= TreeDepth; i++ {
		h, err := Poseidon(z[i-1], z[i-1])
		if err != nil {
			return nil, fmt.Errorf("zero level %d: %w", i, err)
		}
		z[i] = h
	}
	return z, nil
})

// Zeros returns zero[0..TreeDepth]. The slice is shared and must not be modified.
func Zeros() ([]*big.Int, error) {
	return zeros()
}

// EmptyRoot is the root of a tree with no leaves.
func EmptyRoot() (*big.Int, error) {
	z, err := zeros()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(z[TreeDepth]), nil
}

// ZeroPath is the all-zero path used for placeholder inputs.
func ZeroPath() (*MerklePath, error) {
	z, err := zeros()
	if err != nil {
		return nil, err
	}
	p := &MerklePath{
		PathElements: make([]*big.Int, TreeDepth),
		PathIndices:  make([]uint8, TreeDepth),
	}
	for i := 0; i < TreeDepth; i++ {
		p.PathElements[i] = new(big.Int).Set(z[i])
	}
	return p, nil
}

// IndexBits expands a leaf index into TreeDepth direction bits.
func IndexBits(index uint64) []uint8 {
	bits := make([]uint8, TreeDepth)
	for i := 0; i < TreeDepth; i++ {
		bits[i] = uint8((index >> uint(i)) & 1)
	}
	return bits
}

// ComputeRoot folds leaf up the path at the given index.
func (p *MerklePath) ComputeRoot(leaf *big.Int, index uint64) (*big.Int, error) {
	if len(p.PathElements) != TreeDepth {
		return nil, fmt.Errorf("merkle path has %d elements, want %d", len(p.PathElements), TreeDepth)
	}
	cur := new(big.Int).Set(leaf)
	for i, sibling := range p.PathElements {
		var err error
		if (index>>uint(i))&1 == 1 {
			cur, err = Poseidon(sibling, cur)
		} else {
			cur, err = Poseidon(cur, sibling)
		}
		if err != nil {
			return nil, fmt.Errorf("merkle level %d: %w", i, err)
		}
	}
	return cur, nil
}
