// config.go - Relayer fee configuration and its process-wide cache.

package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"privacycash/internal/shielded"
)

// FeeConfig is the relayer's published fee schedule. Amounts are in the
// asset's base units.
type FeeConfig struct {
	WithdrawFeeRate   decimal.Decimal
	DepositFeeRate    decimal.Decimal
	RentFees          map[string]uint64
	MinimumWithdrawal map[string]uint64
	FeeRecipient      string
}

type feeConfigResponse struct {
	WithdrawFeeRate   *decimal.Decimal  `json:"withdraw_fee_rate"`
	DepositFeeRate    *decimal.Decimal  `json:"deposit_fee_rate"`
	RentFees          map[string]uint64 `json:"rent_fees"`
	MinimumWithdrawal map[string]uint64 `json:"minimum_withdrawal"`
	FeeRecipient      string            `json:"fee_recipient"`
}

// FeeConfig returns the cached fee schedule, fetching it on first use.
// Concurrent first callers may each fetch; they all store the same value.
func (c *Client) FeeConfig(ctx context.Context) (*FeeConfig, error) {
	if cfg := c.feeConfig.Load(); cfg != nil {
		return cfg, nil
	}
	cfg, err := c.fetchFeeConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.feeConfig.CompareAndSwap(nil, cfg)
	return c.feeConfig.Load(), nil
}

func (c *Client) fetchFeeConfig(ctx context.Context) (*FeeConfig, error) {
	const p = "config"
	var resp feeConfigResponse
	if err := c.getJSON(ctx, &resp, nil, p); err != nil {
		return nil, err
	}
	if resp.WithdrawFeeRate == nil || resp.RentFees == nil {
		return nil, contractError(p, "missing withdraw_fee_rate or rent_fees")
	}
	if resp.WithdrawFeeRate.IsNegative() || resp.WithdrawFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, contractError(p, "withdraw_fee_rate %s out of range", resp.WithdrawFeeRate)
	}
	cfg := &FeeConfig{
		WithdrawFeeRate:   *resp.WithdrawFeeRate,
		DepositFeeRate:    decimal.Zero,
		RentFees:          resp.RentFees,
		MinimumWithdrawal: resp.MinimumWithdrawal,
		FeeRecipient:      resp.FeeRecipient,
	}
	if resp.DepositFeeRate != nil {
		if resp.DepositFeeRate.IsNegative() || resp.DepositFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, contractError(p, "deposit_fee_rate %s out of range", resp.DepositFeeRate)
		}
		cfg.DepositFeeRate = *resp.DepositFeeRate
	}
	if cfg.MinimumWithdrawal == nil {
		cfg.MinimumWithdrawal = map[string]uint64{}
	}
	return cfg, nil
}

// RentFee returns the fixed rent fee charged on withdrawals of an asset.
func (f *FeeConfig) RentFee(asset shielded.Asset) (uint64, error) {
	fee, ok := f.RentFees[asset.Name]
	if !ok {
		return 0, fmt.Errorf("%w: no rent fee for %s", shielded.ErrUnsupportedAsset, asset.Name)
	}
	return fee, nil
}

// WithdrawFee returns floor(amount*rate) + rent.
func (f *FeeConfig) WithdrawFee(asset shielded.Asset, amount uint64) (uint64, error) {
	rent, err := f.RentFee(asset)
	if err != nil {
		return 0, err
	}
	return applyRate(amount, f.WithdrawFeeRate) + rent, nil
}

// DepositFee returns floor(amount*depositRate).
func (f *FeeConfig) DepositFee(amount uint64) uint64 {
	return applyRate(amount, f.DepositFeeRate)
}

// Minimum returns the smallest accepted withdrawal of an asset (0 if unset).
func (f *FeeConfig) Minimum(asset shielded.Asset) uint64 {
	return f.MinimumWithdrawal[asset.Name]
}

func applyRate(amount uint64, rate decimal.Decimal) uint64 {
	a := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
	return a.Mul(rate).Floor().BigInt().Uint64()
}
