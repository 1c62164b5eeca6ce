// withdraw.go - Withdrawals from the shielded pool.
//
// The requested amount A is taken from the caller's two largest UTXOs. The
// relayer keeps fee = floor(A*rate) + rent, the recipient receives A - fee,
// and what remains of the inputs returns to the caller as change.

package withdraw

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

var (
	ErrAmountTooLowAfterFees = errors.New("amount too low after fees")
	ErrInsufficientBalance   = errors.New("insufficient shielded balance")
	ErrBelowMinimum          = errors.New("amount below minimum withdrawal")
)

// Request is a withdrawal of Amount base units to Recipient.
type Request struct {
	Asset        shielded.Asset
	Keys         *shielded.EncryptionService
	Sender       solana.PublicKey
	Recipient    solana.PublicKey
	FeeRecipient solana.PublicKey
	Amount       uint64
	Inputs       []*wallet.Note
}

// Prepared is the relayer submission set and the proved transaction behind it.
type Prepared struct {
	Params *relay.WithdrawParams
	Result *transact.Result
}

// Quote is the fee split of a withdrawal.
type Quote struct {
	Amount uint64
	Fee    uint64
	Payout uint64
}

// QuoteFee splits amount into fee and payout under the fee schedule.
func QuoteFee(fees *relay.FeeConfig, asset shielded.Asset, amount uint64) (*Quote, error) {
	if amount > math.MaxInt64 {
		return nil, fmt.Errorf("withdrawal amount %d out of range", amount)
	}
	if floor := fees.Minimum(asset); amount < floor {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, floor)
	}
	fee, err := fees.WithdrawFee(asset, amount)
	if err != nil {
		return nil, err
	}
	if fee >= amount {
		return nil, fmt.Errorf("%w: amount %d, fee %d", ErrAmountTooLowAfterFees, amount, fee)
	}
	return &Quote{Amount: amount, Fee: fee, Payout: amount - fee}, nil
}

// Plan returns the value flow of a withdrawal:
// extAmount = -payout, outputs [inputs - payout - fee, 0].
func Plan(asset shielded.Asset, amount uint64) transact.Planner {
	return func(total *big.Int, fees *relay.FeeConfig) (*transact.Plan, error) {
		q, err := QuoteFee(fees, asset, amount)
		if err != nil {
			return nil, err
		}
		if total.Cmp(new(big.Int).SetUint64(amount)) < 0 {
			return nil, fmt.Errorf("%w: have %s, need %d", ErrInsufficientBalance, total, amount)
		}
		change := new(big.Int).Sub(total, new(big.Int).SetUint64(q.Payout))
		change.Sub(change, new(big.Int).SetUint64(q.Fee))
		return &transact.Plan{
			ExtAmount: -int64(q.Payout),
			Fee:       q.Fee,
			Outputs:   [transact.Arity]*big.Int{change, new(big.Int)},
		}, nil
	}
}

// Withdraw proves a withdrawal and returns its relayer submission set.
func Withdraw(ctx context.Context, b *transact.Builder, asm *chain.Assembler, req *Request) (*Prepared, error) {
	inputs := wallet.Largest(req.Inputs, transact.Arity)
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no unspent utxos", ErrInsufficientBalance)
	}
	res, err := b.Build(ctx, &transact.Request{
		Asset:        req.Asset,
		Keys:         req.Keys,
		Inputs:       inputs,
		Recipient:    req.Recipient,
		FeeRecipient: req.FeeRecipient,
		Plan:         Plan(req.Asset, req.Amount),
	})
	if err != nil {
		return nil, err
	}
	params, err := asm.BuildWithdraw(req.Sender, res.Transact)
	if err != nil {
		return nil, err
	}
	return &Prepared{Params: params, Result: res}, nil
}
