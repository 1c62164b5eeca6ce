// deposit.go - Deposits into the shielded pool.
//
// A deposit consolidates the caller's (up to) two largest UTXOs with the new
// public amount into a single output; the second output is always zero.

package deposit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"privacycash/internal/chain"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
	"privacycash/internal/transactions/transact"
	"privacycash/internal/wallet"
)

var ErrInvalidAmount = errors.New("deposit amount must be positive")

// Request is a deposit of Amount base units from Depositor.
type Request struct {
	Asset        shielded.Asset
	Keys         *shielded.EncryptionService
	Depositor    solana.PublicKey
	FeeRecipient solana.PublicKey
	Amount       uint64
	Inputs       []*wallet.Note
}

// Prepared is an unsigned deposit and the proved transaction behind it.
type Prepared struct {
	Tx     *chain.UnsignedTx
	Result *transact.Result
}

// Plan returns the value flow of a deposit of amount:
// outputs [inputs + amount - fee, 0], extAmount = amount.
func Plan(amount uint64) transact.Planner {
	return func(total *big.Int, fees *relay.FeeConfig) (*transact.Plan, error) {
		if amount == 0 || amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
		}
		fee := fees.DepositFee(amount)
		out := new(big.Int).Add(total, new(big.Int).SetUint64(amount-fee))
		return &transact.Plan{
			ExtAmount: int64(amount),
			Fee:       fee,
			Outputs:   [transact.Arity]*big.Int{out, new(big.Int)},
		}, nil
	}
}

// Deposit proves a deposit and assembles its unsigned transaction.
func Deposit(ctx context.Context, b *transact.Builder, asm *chain.Assembler, req *Request) (*Prepared, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	res, err := b.Build(ctx, &transact.Request{
		Asset:        req.Asset,
		Keys:         req.Keys,
		Inputs:       wallet.Largest(req.Inputs, transact.Arity),
		Recipient:    req.Depositor,
		FeeRecipient: req.FeeRecipient,
		Plan:         Plan(req.Amount),
	})
	if err != nil {
		return nil, err
	}
	tx, err := asm.BuildDeposit(ctx, req.Depositor, res.Transact)
	if err != nil {
		return nil, err
	}
	return &Prepared{Tx: tx, Result: res}, nil
}
