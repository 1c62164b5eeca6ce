// reader.go - Read-only view of the Solana ledger.

package chain

import (
	"context"
	stderrors "errors"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

var ErrAltNotFound = stderrors.New("address lookup table not found")

// maxAccountsPerQuery is the getMultipleAccounts limit.
const maxAccountsPerQuery = 100

// Reader is the subset of RPC the engine needs.
type Reader interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// AccountsExist reports, per address, whether an account is present.
	AccountsExist(ctx context.Context, addrs []solana.PublicKey) ([]bool, error)
	LookupTable(ctx context.Context, addr solana.PublicKey) (solana.PublicKeySlice, error)
}

// RPCReader implements Reader over JSON-RPC.
type RPCReader struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewRPCReader connects to a Solana RPC endpoint.
func NewRPCReader(endpoint string) *RPCReader {
	return &RPCReader{rpc: rpc.New(endpoint), commitment: rpc.CommitmentConfirmed}
}

func (r *RPCReader) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := r.rpc.GetLatestBlockhash(ctx, r.commitment)
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "getLatestBlockhash")
	}
	return out.Value.Blockhash, nil
}

func (r *RPCReader) AccountsExist(ctx context.Context, addrs []solana.PublicKey) ([]bool, error) {
	exists := make([]bool, 0, len(addrs))
	for start := 0; start < len(addrs); start += maxAccountsPerQuery {
		end := min(start+maxAccountsPerQuery, len(addrs))
		out, err := r.rpc.GetMultipleAccounts(ctx, addrs[start:end]...)
		if err != nil {
			return nil, errors.Wrapf(err, "getMultipleAccounts [%d,%d)", start, end)
		}
		if len(out.Value) != end-start {
			return nil, errors.Errorf("getMultipleAccounts returned %d accounts, want %d", len(out.Value), end-start)
		}
		for _, acc := range out.Value {
			exists = append(exists, acc != nil)
		}
	}
	return exists, nil
}

func (r *RPCReader) LookupTable(ctx context.Context, addr solana.PublicKey) (solana.PublicKeySlice, error) {
	out, err := r.rpc.GetAccountInfo(ctx, addr)
	if stderrors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		return nil, errors.Wrapf(ErrAltNotFound, "%s", addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "getAccountInfo")
	}
	state, err := addresslookuptable.DecodeAddressLookupTableState(out.Value.Data.GetBinary())
	if err != nil {
		return nil, errors.Wrapf(err, "decode lookup table %s", addr)
	}
	return state.Addresses, nil
}
