// service.go - Deposit, balance and withdrawal use cases.
//
// Every operation is stateless: keys are re-derived from the caller's
// sign-in signature, the unspent set is rebuilt from the remote ledger and
// nothing is kept once the call returns.
//
// Deposit:  keys -> tree state -> unspent set -> inputs/outputs -> proof ->
//           unsigned transaction (client signs) -> relay -> confirmation poll
// Withdraw: the same up to the proof, then a relayer submission set; the
//           pool pays, so nothing is signed by the caller.

package privacycash

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"privacycash/internal/chain"
	"privacycash/internal/log"
	"privacycash/internal/prover"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
	"privacycash/internal/transactions/deposit"
	"privacycash/internal/transactions/transact"
	"privacycash/internal/transactions/withdraw"
	"privacycash/internal/wallet"
)

// ErrInvalidRequest reports a malformed caller-supplied field.
var ErrInvalidRequest = errors.New("invalid request")

const (
	DefaultConfirmAttempts = 10
	DefaultConfirmDelay    = 2 * time.Second
)

// Config describes the pool and the confirmation poll.
type Config struct {
	ProgramID    solana.PublicKey
	LookupTable  solana.PublicKey
	ComputeUnits uint32
	// FeeRecipient is used when the relayer's fee schedule names none.
	FeeRecipient    solana.PublicKey
	ConfirmAttempts int
	ConfirmDelay    time.Duration
}

// Service composes the engine's components into the six operations.
type Service struct {
	cfg     Config
	relay   *relay.Client
	asm     *chain.Assembler
	rec     *wallet.Reconstructor
	builder *transact.Builder
}

// New creates a service over a relayer, a chain reader and a prover backend.
func New(cfg Config, rc *relay.Client, reader chain.Reader, backend prover.Prover) *Service {
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = DefaultConfirmAttempts
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	return &Service{
		cfg:   cfg,
		relay: rc,
		asm: chain.NewAssembler(chain.Config{
			ProgramID:    cfg.ProgramID,
			LookupTable:  cfg.LookupTable,
			ComputeUnits: cfg.ComputeUnits,
		}, reader),
		rec:     wallet.NewReconstructor(rc, chain.NewSpentChecker(cfg.ProgramID, reader)),
		builder: transact.NewBuilder(rc, backend),
	}
}

// Relay returns the relayer client.
func (s *Service) Relay() *relay.Client { return s.relay }

// Reader returns the chain reader.
func (s *Service) Reader() chain.Reader { return s.asm.Reader() }

// PrepareDeposit builds an unsigned native SOL deposit.
func (s *Service) PrepareDeposit(ctx context.Context, req *DepositRequest) (*PreparedDeposit, error) {
	return s.prepareDeposit(ctx, req, shielded.SOL)
}

// PrepareSplDeposit builds an unsigned token deposit.
func (s *Service) PrepareSplDeposit(ctx context.Context, req *DepositRequest) (*PreparedDeposit, error) {
	asset, err := shielded.LookupAsset(req.Token)
	if err != nil {
		return nil, err
	}
	if asset.IsNative() {
		return nil, fmt.Errorf("%w: %s is not a token", shielded.ErrUnsupportedAsset, req.Token)
	}
	return s.prepareDeposit(ctx, req, asset)
}

func (s *Service) prepareDeposit(ctx context.Context, req *DepositRequest, asset shielded.Asset) (*PreparedDeposit, error) {
	// Step 1: caller identity and keys
	owner, keys, err := authenticate(&req.Credentials)
	if err != nil {
		return nil, err
	}

	// Step 2: unspent set
	notes, err := s.rec.Unspent(ctx, keys, asset)
	if err != nil {
		return nil, err
	}

	// Step 3: proof and transaction
	prep, err := deposit.Deposit(ctx, s.builder, s.asm, &deposit.Request{
		Asset:        asset,
		Keys:         keys,
		Depositor:    owner,
		FeeRecipient: s.feeRecipient(owner),
		Amount:       req.Amount,
		Inputs:       notes,
	})
	if err != nil {
		return nil, err
	}
	cms, err := commitments(prep.Result)
	if err != nil {
		return nil, err
	}
	log.Infow("deposit prepared",
		"owner", owner.String(),
		"asset", asset.Name,
		"amount", req.Amount,
		"inputs", min(len(notes), transact.Arity),
	)
	return &PreparedDeposit{
		Transaction:     prep.Tx.Transaction,
		Blockhash:       prep.Tx.Blockhash.String(),
		Token:           asset.Name,
		Amount:          req.Amount,
		Fee:             prep.Result.Plan.Fee,
		EncryptedOutput: hex.EncodeToString(prep.Result.EncryptedOutputs[0]),
		Commitments:     cms,
	}, nil
}

// SubmitDeposit relays a client-signed deposit and waits for its first
// output to reach the ledger.
func (s *Service) SubmitDeposit(ctx context.Context, req *SubmitDepositRequest) (*Submission, error) {
	asset, err := lookupAsset(req.Token)
	if err != nil {
		return nil, err
	}
	if _, err := solana.PublicKeyFromBase58(req.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: public key %q: %v", ErrInvalidRequest, req.PublicKey, err)
	}
	output, err := hex.DecodeString(req.EncryptedOutput)
	if err != nil || len(output) == 0 {
		return nil, fmt.Errorf("%w: encrypted output must be non-empty hex", ErrInvalidRequest)
	}
	if req.SignedTransaction == "" {
		return nil, fmt.Errorf("%w: signed transaction is empty", ErrInvalidRequest)
	}

	dr := &relay.DepositRequest{
		SignedTransaction: req.SignedTransaction,
		SenderAddress:     req.PublicKey,
		Referrer:          req.Referrer,
	}
	var res *relay.SubmitResult
	if asset.IsNative() {
		res, err = s.relay.SubmitDeposit(ctx, dr)
	} else {
		dr.MintAddress = asset.Mint
		res, err = s.relay.SubmitSplDeposit(ctx, dr)
	}
	if err != nil {
		return nil, err
	}
	log.Infow("deposit relayed", "owner", req.PublicKey, "asset", asset.Name, "signature", res.Signature)
	return &Submission{
		Signature: res.Signature,
		Confirmed: s.PollConfirmation(ctx, output, asset),
	}, nil
}

// GetBalance sums the caller's unspent UTXOs of one asset.
func (s *Service) GetBalance(ctx context.Context, req *BalanceRequest) (*Balance, error) {
	asset, err := lookupAsset(req.Token)
	if err != nil {
		return nil, err
	}
	_, keys, err := authenticate(&req.Credentials)
	if err != nil {
		return nil, err
	}
	notes, err := s.rec.Unspent(ctx, keys, asset)
	if err != nil {
		return nil, err
	}
	total := wallet.Balance(notes)
	return &Balance{
		Token:    asset.Name,
		Amount:   total.String(),
		Decimals: asset.Decimals,
		Display:  decimal.NewFromBigInt(total, -int32(asset.Decimals)).String(),
		Utxos:    len(notes),
	}, nil
}

// PrepareWithdraw proves a withdrawal and returns its relayer submission set.
func (s *Service) PrepareWithdraw(ctx context.Context, req *WithdrawRequest) (*PreparedWithdraw, error) {
	asset, err := lookupAsset(req.Token)
	if err != nil {
		return nil, err
	}

	// Step 1: caller identity, keys and recipient
	owner, keys, err := authenticate(&req.Credentials)
	if err != nil {
		return nil, err
	}
	recipient := owner
	if req.Recipient != "" {
		recipient, err = solana.PublicKeyFromBase58(req.Recipient)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient %q: %v", ErrInvalidRequest, req.Recipient, err)
		}
	}

	// Step 2: unspent set
	notes, err := s.rec.Unspent(ctx, keys, asset)
	if err != nil {
		return nil, err
	}
	if total := wallet.Balance(wallet.Largest(notes, transact.Arity)); total.Cmp(new(big.Int).SetUint64(req.Amount)) < 0 {
		return nil, fmt.Errorf("%w: two largest utxos hold %s, need %d", withdraw.ErrInsufficientBalance, total, req.Amount)
	}

	// Step 3: proof and submission set
	prep, err := withdraw.Withdraw(ctx, s.builder, s.asm, &withdraw.Request{
		Asset:        asset,
		Keys:         keys,
		Sender:       owner,
		Recipient:    recipient,
		FeeRecipient: s.feeRecipient(owner),
		Amount:       req.Amount,
		Inputs:       notes,
	})
	if err != nil {
		return nil, err
	}
	prep.Params.Referrer = req.Referrer
	plan := prep.Result.Plan
	log.Infow("withdrawal prepared",
		"owner", owner.String(),
		"asset", asset.Name,
		"amount", req.Amount,
		"fee", plan.Fee,
	)
	return &PreparedWithdraw{
		Params: prep.Params,
		Token:  asset.Name,
		Amount: req.Amount,
		Fee:    plan.Fee,
		Payout: uint64(-plan.ExtAmount),
		Change: plan.Outputs[0].String(),
	}, nil
}

// SubmitWithdraw relays a prepared withdrawal and waits for its first
// output to reach the ledger.
func (s *Service) SubmitWithdraw(ctx context.Context, req *SubmitWithdrawRequest) (*Submission, error) {
	if req.Params == nil || len(req.Params.EncryptedOutput1) == 0 {
		return nil, fmt.Errorf("%w: withdrawal parameters are incomplete", ErrInvalidRequest)
	}
	asset, err := WithdrawAsset(req.Params, req.Token)
	if err != nil {
		return nil, err
	}
	res, err := s.relay.SubmitWithdraw(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	log.Infow("withdrawal relayed", "sender", req.Params.SenderAddress, "asset", asset.Name, "signature", res.Signature)
	return &Submission{
		Signature: res.Signature,
		Confirmed: s.PollConfirmation(ctx, req.Params.EncryptedOutput1, asset),
	}, nil
}

// PollConfirmation checks up to ConfirmAttempts times, ConfirmDelay apart,
// whether output has been appended to the ledger. Running out of attempts
// is logged and reported as false.
func (s *Service) PollConfirmation(ctx context.Context, output []byte, asset shielded.Asset) bool {
	t := time.NewTimer(s.cfg.ConfirmDelay)
	defer t.Stop()
	for attempt := 1; attempt <= s.cfg.ConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Warnw("confirmation poll abandoned", "asset", asset.Name, "attempt", attempt, "err", ctx.Err())
			return false
		case <-t.C:
		}
		ok, err := s.relay.OutputExists(ctx, output, asset)
		if err != nil {
			log.Debugw("confirmation check failed", "attempt", attempt, "err", err)
		}
		if ok {
			log.Debugw("output confirmed", "asset", asset.Name, "attempt", attempt)
			return true
		}
		t.Reset(s.cfg.ConfirmDelay)
	}
	log.Warnw("output not confirmed", "asset", asset.Name, "attempts", s.cfg.ConfirmAttempts)
	return false
}

// WithdrawAsset resolves the asset of a submission set from its mint, native
// SOL when the mint is empty. A non-empty token must name the same asset.
func WithdrawAsset(params *relay.WithdrawParams, token string) (shielded.Asset, error) {
	asset := shielded.SOL
	if params.MintAddress != "" {
		a, err := shielded.LookupAsset(params.MintAddress)
		if err != nil {
			return shielded.Asset{}, err
		}
		if a.IsNative() {
			return shielded.Asset{}, fmt.Errorf("%w: native withdrawals carry no mint", shielded.ErrUnsupportedAsset)
		}
		asset = a
	}
	if token != "" {
		named, err := shielded.LookupAsset(token)
		if err != nil {
			return shielded.Asset{}, err
		}
		if named.Mint != asset.Mint {
			return shielded.Asset{}, fmt.Errorf("%w: token %q does not match a %s withdrawal", shielded.ErrUnsupportedAsset, token, asset.Name)
		}
	}
	return asset, nil
}

func (s *Service) feeRecipient(owner solana.PublicKey) solana.PublicKey {
	if s.cfg.FeeRecipient.IsZero() {
		return owner
	}
	return s.cfg.FeeRecipient
}

// authenticate checks the sign-in signature against the public key and
// derives the caller's keys from it.
func authenticate(c *Credentials) (solana.PublicKey, *shielded.EncryptionService, error) {
	owner, err := solana.PublicKeyFromBase58(c.PublicKey)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: public key %q: %v", ErrInvalidRequest, c.PublicKey, err)
	}
	raw, err := base58.Decode(c.Signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: expected %d base58 bytes", shielded.ErrInvalidSignature, ed25519.SignatureSize)
	}
	if !solana.SignatureFromBytes(raw).Verify(owner, []byte(shielded.SignInMessage)) {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: does not verify for %s", shielded.ErrInvalidSignature, owner)
	}
	keys, err := shielded.DeriveKeys(raw)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return owner, keys, nil
}

// lookupAsset resolves a token name, defaulting to native SOL.
func lookupAsset(token string) (shielded.Asset, error) {
	if token == "" {
		return shielded.SOL, nil
	}
	return shielded.LookupAsset(token)
}

func commitments(res *transact.Result) ([2]string, error) {
	var out [2]string
	for i, u := range res.Outputs {
		cm, err := u.Commitment()
		if err != nil {
			return out, fmt.Errorf("output %d commitment: %w", i, err)
		}
		out[i] = cm.String()
	}
	return out, nil
}
