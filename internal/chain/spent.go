package chain

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// SpentChecker tests nullifiers against the on-chain spent set.
type SpentChecker struct {
	programID solana.PublicKey
	reader    Reader
}

func NewSpentChecker(programID solana.PublicKey, reader Reader) *SpentChecker {
	return &SpentChecker{programID: programID, reader: reader}
}

// Spent reports, per nullifier, whether either of its marker accounts exists.
// All markers are fetched in one batched lookup.
func (s *SpentChecker) Spent(ctx context.Context, nullifiers []*big.Int) ([]bool, error) {
	addrs := make([]solana.PublicKey, 0, 2*len(nullifiers))
	for _, n := range nullifiers {
		pdas, err := NullifierAccounts(s.programID, n)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, pdas[0], pdas[1])
	}
	exists, err := s.reader.AccountsExist(ctx, addrs)
	if err != nil {
		return nil, err
	}
	spent := make([]bool, len(nullifiers))
	for i := range nullifiers {
		spent[i] = exists[2*i] || exists[2*i+1]
	}
	return spent, nil
}
