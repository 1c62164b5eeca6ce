// assembler.go - Deposit transactions and withdrawal submission sets.
//
// Deposits are built as unsigned v0 transactions for the client to sign.
// Withdrawals are never signed here: the pool pays, so the relayer executes
// them from the returned parameter set.

package chain

import (
	"context"
	"encoding/base64"
	"math/big"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/pkg/errors"

	"privacycash/internal/log"
	"privacycash/internal/prover"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
)

// DefaultComputeUnits is the compute budget requested by deposits.
const DefaultComputeUnits = 1_000_000

// Config names the on-chain pool.
type Config struct {
	ProgramID    solana.PublicKey
	LookupTable  solana.PublicKey
	ComputeUnits uint32
}

// Transact is a proved transaction ready for assembly.
type Transact struct {
	Asset      shielded.Asset
	Proof      *prover.EncodedProof
	ExtData    *ExtData
	Nullifiers [2]*big.Int
}

// UnsignedTx is a base64 wire transaction with zeroed signature slots.
type UnsignedTx struct {
	Transaction string
	Blockhash   solana.Hash
	Accounts    *TransactAccounts
}

// Assembler turns proved transactions into wire form.
type Assembler struct {
	cfg    Config
	reader Reader
}

// NewAssembler returns an assembler for the pool described by cfg.
func NewAssembler(cfg Config, reader Reader) *Assembler {
	if cfg.ComputeUnits == 0 {
		cfg.ComputeUnits = DefaultComputeUnits
	}
	return &Assembler{cfg: cfg, reader: reader}
}

// ProgramID returns the pool program.
func (a *Assembler) ProgramID() solana.PublicKey { return a.cfg.ProgramID }

// Reader returns the chain reader used by the assembler.
func (a *Assembler) Reader() Reader { return a.reader }

// BuildDeposit assembles the deposit transaction paid for by depositor.
func (a *Assembler) BuildDeposit(ctx context.Context, depositor solana.PublicKey, t *Transact) (*UnsignedTx, error) {
	// Step 1: accounts and instruction data
	acc, err := DeriveTransactAccounts(a.cfg.ProgramID, t.Asset, t.Nullifiers)
	if err != nil {
		return nil, err
	}
	data, err := EncodeTransact(t.Proof, t.ExtData, !t.Asset.IsNative())
	if err != nil {
		return nil, errors.Wrap(err, "encode transact")
	}
	var metas solana.AccountMetaSlice
	if t.Asset.IsNative() {
		metas = nativeMetas(acc, t.ExtData, depositor)
	} else {
		metas, err = splMetas(acc, t.ExtData, depositor)
		if err != nil {
			return nil, err
		}
	}

	// Step 2: lookup table and blockhash
	alt, err := a.reader.LookupTable(ctx, a.cfg.LookupTable)
	if err != nil {
		return nil, err
	}
	blockhash, err := a.reader.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	// Step 3: v0 transaction with zeroed signatures
	instrs := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(a.cfg.ComputeUnits).Build(),
		solana.NewInstruction(a.cfg.ProgramID, metas, data),
	}
	tx, err := solana.NewTransaction(instrs, blockhash,
		solana.TransactionPayer(depositor),
		solana.TransactionAddressTables(map[solana.PublicKey]solana.PublicKeySlice{a.cfg.LookupTable: alt}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build transaction")
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "serialize transaction")
	}
	log.Debugw("deposit assembled", "asset", t.Asset.Name, "bytes", len(raw), "blockhash", blockhash.String())
	return &UnsignedTx{
		Transaction: base64.StdEncoding.EncodeToString(raw),
		Blockhash:   blockhash,
		Accounts:    acc,
	}, nil
}

// BuildWithdraw returns the relayer submission set of a withdrawal.
func (a *Assembler) BuildWithdraw(sender solana.PublicKey, t *Transact) (*relay.WithdrawParams, error) {
	acc, err := DeriveTransactAccounts(a.cfg.ProgramID, t.Asset, t.Nullifiers)
	if err != nil {
		return nil, err
	}
	data, err := EncodeTransact(t.Proof, t.ExtData, !t.Asset.IsNative())
	if err != nil {
		return nil, errors.Wrap(err, "encode transact")
	}
	p := &relay.WithdrawParams{
		SerializedProof:     data,
		TreeAccount:         acc.Tree.String(),
		Nullifier0PDA:       acc.Nullifier0.String(),
		Nullifier1PDA:       acc.Nullifier1.String(),
		Nullifier2PDA:       acc.Nullifier2.String(),
		Nullifier3PDA:       acc.Nullifier3.String(),
		TreeTokenAccount:    acc.TreeToken.String(),
		GlobalConfigAccount: acc.GlobalConfig.String(),
		Recipient:           t.ExtData.Recipient.String(),
		FeeRecipientAccount: t.ExtData.FeeRecipient.String(),
		ExtAmount:           t.ExtData.ExtAmount,
		EncryptedOutput1:    t.ExtData.EncryptedOutput1,
		EncryptedOutput2:    t.ExtData.EncryptedOutput2,
		Fee:                 t.ExtData.Fee,
		LookupTableAddress:  a.cfg.LookupTable.String(),
		SenderAddress:       sender.String(),
	}
	if !t.Asset.IsNative() {
		mint := t.ExtData.Mint
		recipientATA, err := ata(t.ExtData.Recipient, mint)
		if err != nil {
			return nil, err
		}
		feeATA, err := ata(t.ExtData.FeeRecipient, mint)
		if err != nil {
			return nil, err
		}
		treeATA, err := ata(acc.GlobalConfig, mint)
		if err != nil {
			return nil, err
		}
		p.MintAddress = mint.String()
		p.RecipientTokenATA = recipientATA.String()
		p.FeeRecipientATA = feeATA.String()
		p.TreeTokenATA = treeATA.String()
	}
	return p, nil
}

func ata(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "associated token account of %s", owner)
	}
	return addr, nil
}

func nativeMetas(acc *TransactAccounts, ext *ExtData, signer solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(acc.Tree).WRITE(),
		solana.Meta(acc.Nullifier0).WRITE(),
		solana.Meta(acc.Nullifier1).WRITE(),
		solana.Meta(acc.Nullifier2),
		solana.Meta(acc.Nullifier3),
		solana.Meta(acc.TreeToken).WRITE(),
		solana.Meta(acc.GlobalConfig),
		solana.Meta(ext.Recipient).WRITE(),
		solana.Meta(ext.FeeRecipient).WRITE(),
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}
}

func splMetas(acc *TransactAccounts, ext *ExtData, signer solana.PublicKey) (solana.AccountMetaSlice, error) {
	signerATA, err := ata(signer, ext.Mint)
	if err != nil {
		return nil, err
	}
	recipientATA, err := ata(ext.Recipient, ext.Mint)
	if err != nil {
		return nil, err
	}
	treeATA, err := ata(acc.GlobalConfig, ext.Mint)
	if err != nil {
		return nil, err
	}
	feeATA, err := ata(ext.FeeRecipient, ext.Mint)
	if err != nil {
		return nil, err
	}
	return solana.AccountMetaSlice{
		solana.Meta(acc.Tree).WRITE(),
		solana.Meta(acc.Nullifier0).WRITE(),
		solana.Meta(acc.Nullifier1).WRITE(),
		solana.Meta(acc.Nullifier2),
		solana.Meta(acc.Nullifier3),
		solana.Meta(acc.GlobalConfig),
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(ext.Mint),
		solana.Meta(signerATA).WRITE(),
		solana.Meta(ext.Recipient).WRITE(),
		solana.Meta(recipientATA).WRITE(),
		solana.Meta(treeATA).WRITE(),
		solana.Meta(feeATA).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SystemProgramID),
	}, nil
}
