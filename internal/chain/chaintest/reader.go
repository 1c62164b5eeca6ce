// Package chaintest provides an in-memory chain.Reader.
package chaintest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"privacycash/internal/chain"
)

// Reader holds a set of existing accounts and lookup tables.
type Reader struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey]bool
	tables    map[solana.PublicKey]solana.PublicKeySlice
	Blockhash solana.Hash
	queries   [][]solana.PublicKey
}

func New() *Reader {
	return &Reader{
		accounts:  map[solana.PublicKey]bool{},
		tables:    map[solana.PublicKey]solana.PublicKeySlice{},
		Blockhash: solana.Hash{1, 2, 3, 4},
	}
}

// AddAccount marks an address as existing.
func (r *Reader) AddAccount(addr solana.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[addr] = true
}

// AddLookupTable registers a lookup table and its addresses.
func (r *Reader) AddLookupTable(addr solana.PublicKey, entries ...solana.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[addr] = entries
}

// Queries returns the address batches passed to AccountsExist.
func (r *Reader) Queries() [][]solana.PublicKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]solana.PublicKey(nil), r.queries...)
}

func (r *Reader) LatestBlockhash(context.Context) (solana.Hash, error) {
	return r.Blockhash, nil
}

func (r *Reader) AccountsExist(_ context.Context, addrs []solana.PublicKey) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, append([]solana.PublicKey(nil), addrs...))
	out := make([]bool, len(addrs))
	for i, a := range addrs {
		out[i] = r.accounts[a]
	}
	return out, nil
}

func (r *Reader) LookupTable(_ context.Context, addr solana.PublicKey) (solana.PublicKeySlice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[addr]
	if !ok {
		return nil, chain.ErrAltNotFound
	}
	return t, nil
}

var _ chain.Reader = (*Reader)(nil)
