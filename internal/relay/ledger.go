// ledger.go - Client for the append-only encrypted-output log.
//
// Every transaction appends two encrypted outputs. The log is paged by
// position; index lookups and existence checks address entries by ciphertext.

package relay

import (
	"context"
	"encoding/hex"
	"strconv"

	"privacycash/internal/shielded"
)

// LedgerPage is one window of the encrypted-output log.
type LedgerPage struct {
	EncryptedOutputs [][]byte
	HasMore          bool
	Total            uint64
}

type pageResponse struct {
	EncryptedOutputs []string `json:"encrypted_outputs"`
	HasMore          *bool    `json:"hasMore"`
	Total            *uint64  `json:"total"`
}

type indicesRequest struct {
	EncryptedOutputs []string `json:"encrypted_outputs"`
}

type indicesResponse struct {
	Indices []uint64 `json:"indices"`
}

type existsResponse struct {
	Exists *bool `json:"exists"`
}

// FetchLedgerPage fetches entries [start, end) of an asset's log.
func (c *Client) FetchLedgerPage(ctx context.Context, start, end uint64, asset shielded.Asset) (*LedgerPage, error) {
	const p = "utxos/range"
	q := assetQuery(asset)
	q.Set("start", strconv.FormatUint(start, 10))
	q.Set("end", strconv.FormatUint(end, 10))

	var resp pageResponse
	if err := c.getJSON(ctx, &resp, q, p); err != nil {
		return nil, err
	}
	if resp.EncryptedOutputs == nil || resp.HasMore == nil {
		return nil, contractError(p, "missing encrypted_outputs or hasMore")
	}
	page := &LedgerPage{
		EncryptedOutputs: make([][]byte, 0, len(resp.EncryptedOutputs)),
		HasMore:          *resp.HasMore,
	}
	if resp.Total != nil {
		page.Total = *resp.Total
	}
	for i, s := range resp.EncryptedOutputs {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, contractError(p, "entry %d is not hex: %v", i, err)
		}
		page.EncryptedOutputs = append(page.EncryptedOutputs, b)
	}
	return page, nil
}

// LookupIndices recovers the tree index of each encrypted output, in order.
func (c *Client) LookupIndices(ctx context.Context, outputs [][]byte) ([]uint64, error) {
	const p = "utxos/indices"
	req := indicesRequest{EncryptedOutputs: make([]string, len(outputs))}
	for i, o := range outputs {
		req.EncryptedOutputs[i] = hex.EncodeToString(o)
	}
	var resp indicesResponse
	if err := c.postJSON(ctx, req, &resp, p); err != nil {
		return nil, err
	}
	if len(resp.Indices) != len(outputs) {
		return nil, contractError(p, "expected %d indices, got %d", len(outputs), len(resp.Indices))
	}
	return resp.Indices, nil
}

// OutputExists reports whether an encrypted output has been appended to the log.
func (c *Client) OutputExists(ctx context.Context, output []byte, asset shielded.Asset) (bool, error) {
	h := hex.EncodeToString(output)
	var resp existsResponse
	if err := c.getJSON(ctx, &resp, assetQuery(asset), "utxos", "check", h); err != nil {
		return false, err
	}
	if resp.Exists == nil {
		return false, contractError("utxos/check/"+h, "missing exists")
	}
	return *resp.Exists, nil
}
