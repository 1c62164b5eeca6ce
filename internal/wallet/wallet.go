// wallet.go - Reconstruction of a caller's unspent UTXO set.
//
// Nothing is stored between calls. The set is rebuilt on demand by scanning
// the encrypted-output log, keeping the records that decrypt under the
// caller's keys and dropping those whose nullifier is already on chain.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"privacycash/internal/log"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
)

// PageSize is the number of log entries requested per page.
const PageSize = 20000

// Ledger is the encrypted-output log.
type Ledger interface {
	FetchLedgerPage(ctx context.Context, start, end uint64, asset shielded.Asset) (*relay.LedgerPage, error)
	LookupIndices(ctx context.Context, outputs [][]byte) ([]uint64, error)
}

// SpentSet reports whether nullifiers have been published.
type SpentSet interface {
	Spent(ctx context.Context, nullifiers []*big.Int) ([]bool, error)
}

// Note is an owned, unspent UTXO and the record it was decrypted from.
type Note struct {
	Utxo            *shielded.Utxo
	EncryptedOutput []byte
}

// Reconstructor rebuilds unspent sets from the remote log.
type Reconstructor struct {
	ledger   Ledger
	spent    SpentSet
	pageSize uint64
}

// NewReconstructor returns a reconstructor reading pages of PageSize entries.
func NewReconstructor(ledger Ledger, spent SpentSet) *Reconstructor {
	return &Reconstructor{ledger: ledger, spent: spent, pageSize: PageSize}
}

// WithPageSize overrides the page size.
func (r *Reconstructor) WithPageSize(n uint64) *Reconstructor {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// Unspent returns the caller's unspent notes of one asset, largest first.
func (r *Reconstructor) Unspent(ctx context.Context, svc *shielded.EncryptionService, asset shielded.Asset) ([]*Note, error) {
	if !svc.Derived() {
		return nil, shielded.ErrKeyNotDerived
	}

	// Step 1: scan and decrypt
	candidates, scanned, err := r.scan(ctx, svc, asset)
	if err != nil {
		return nil, err
	}
	log.Debugw("ledger scanned", "asset", asset.Name, "entries", scanned, "owned", len(candidates))
	if len(candidates) == 0 {
		return nil, nil
	}

	// Step 2: drop spent candidates
	candidates, err = r.dropSpent(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Step 3: recover tree indices, re-checking corrected ones
	outputs := make([][]byte, len(candidates))
	for i, n := range candidates {
		outputs[i] = n.EncryptedOutput
	}
	indices, err := r.ledger.LookupIndices(ctx, outputs)
	if err != nil {
		return nil, err
	}
	var corrected []*Note
	unspent := make([]*Note, 0, len(candidates))
	for i, n := range candidates {
		if idx, _ := n.Utxo.Index(); idx != indices[i] {
			n.Utxo.SetIndex(indices[i])
			corrected = append(corrected, n)
			continue
		}
		unspent = append(unspent, n)
	}
	if len(corrected) > 0 {
		log.Debugw("utxo indices corrected", "count", len(corrected))
		corrected, err = r.dropSpent(ctx, corrected)
		if err != nil {
			return nil, err
		}
		unspent = append(unspent, corrected...)
	}

	SortByAmount(unspent)
	return unspent, nil
}

func (r *Reconstructor) scan(ctx context.Context, svc *shielded.EncryptionService, asset shielded.Asset) ([]*Note, uint64, error) {
	var (
		owned   []*Note
		scanned uint64
	)
	for start := uint64(0); ; start += r.pageSize {
		page, err := r.ledger.FetchLedgerPage(ctx, start, start+r.pageSize, asset)
		if err != nil {
			return nil, 0, err
		}
		if len(page.EncryptedOutputs) == 0 && page.HasMore {
			return nil, 0, &relay.ProtocolError{
				Path:    "utxos/range",
				Message: fmt.Sprintf("empty page at %d claims more entries", start),
			}
		}
		scanned += uint64(len(page.EncryptedOutputs))
		for _, out := range page.EncryptedOutputs {
			u, err := svc.DecryptUtxo(out)
			if errors.Is(err, shielded.ErrDecryptionMismatch) || errors.Is(err, shielded.ErrInvalidPlaintext) {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			if u.IsZero() || u.Mint() != asset.Mint {
				continue
			}
			owned = append(owned, &Note{Utxo: u, EncryptedOutput: out})
		}
		if !page.HasMore {
			return owned, scanned, nil
		}
	}
}

func (r *Reconstructor) dropSpent(ctx context.Context, notes []*Note) ([]*Note, error) {
	nullifiers := make([]*big.Int, len(notes))
	for i, n := range notes {
		nf, err := n.Utxo.Nullifier()
		if err != nil {
			return nil, fmt.Errorf("nullifier of candidate %d: %w", i, err)
		}
		nullifiers[i] = nf
	}
	spent, err := r.spent.Spent(ctx, nullifiers)
	if err != nil {
		return nil, err
	}
	kept := notes[:0:0]
	for i, n := range notes {
		if !spent[i] {
			kept = append(kept, n)
		}
	}
	return kept, nil
}

// SortByAmount orders notes by descending amount.
func SortByAmount(notes []*Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Utxo.Amount().Cmp(notes[j].Utxo.Amount()) > 0
	})
}

// Largest returns up to n of the largest notes.
func Largest(notes []*Note, n int) []*Note {
	sorted := append([]*Note(nil), notes...)
	SortByAmount(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Balance sums the amounts of notes.
func Balance(notes []*Note) *big.Int {
	total := new(big.Int)
	for _, n := range notes {
		total.Add(total, n.Utxo.Amount())
	}
	return total
}
