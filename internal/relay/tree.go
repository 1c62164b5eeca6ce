// tree.go - Commitment tree oracle: current root and Merkle paths.

package relay

import (
	"context"
	"fmt"
	"math/big"

	"privacycash/internal/shielded"
)

type rootResponse struct {
	Root      *string `json:"root"`
	NextIndex *uint64 `json:"nextIndex"`
}

type proofResponse struct {
	PathElements []string `json:"pathElements"`
	PathIndices  []uint8  `json:"pathIndices"`
}

// QueryTreeState fetches the current root and next leaf index of an asset's tree.
func (c *Client) QueryTreeState(ctx context.Context, asset shielded.Asset) (*shielded.TreeState, error) {
	const p = "merkle/root"
	var resp rootResponse
	if err := c.getJSON(ctx, &resp, assetQuery(asset), p); err != nil {
		return nil, err
	}
	if resp.Root == nil || resp.NextIndex == nil {
		return nil, contractError(p, "missing root or nextIndex")
	}
	root, err := parseField(*resp.Root)
	if err != nil {
		return nil, contractError(p, "root: %v", err)
	}
	return &shielded.TreeState{Root: root, NextIndex: *resp.NextIndex}, nil
}

// FetchMerkleProof fetches the authentication path of a committed leaf.
func (c *Client) FetchMerkleProof(ctx context.Context, commitment *big.Int, asset shielded.Asset) (*shielded.MerklePath, error) {
	p := "merkle/proof/" + commitment.String()
	var resp proofResponse
	if err := c.getJSON(ctx, &resp, assetQuery(asset), "merkle", "proof", commitment.String()); err != nil {
		return nil, err
	}
	if len(resp.PathElements) != shielded.TreeDepth {
		return nil, contractError(p, "expected %d path elements, got %d", shielded.TreeDepth, len(resp.PathElements))
	}
	if resp.PathIndices != nil && len(resp.PathIndices) != shielded.TreeDepth {
		return nil, contractError(p, "expected %d path indices, got %d", shielded.TreeDepth, len(resp.PathIndices))
	}
	path := &shielded.MerklePath{
		PathElements: make([]*big.Int, shielded.TreeDepth),
		PathIndices:  resp.PathIndices,
	}
	for i, s := range resp.PathElements {
		e, err := parseField(s)
		if err != nil {
			return nil, contractError(p, "path element %d: %v", i, err)
		}
		path.PathElements[i] = e
	}
	return path, nil
}

// parseField parses a decimal field element and rejects values outside the field.
func parseField(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if v.Sign() < 0 || v.Cmp(shielded.FieldSize()) >= 0 {
		return nil, fmt.Errorf("out of field range: %s", s)
	}
	return v, nil
}
