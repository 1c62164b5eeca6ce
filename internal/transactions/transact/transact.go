// transact.go - Shared 2-input / 2-output transaction builder.
//
// Deposits and withdrawals differ only in their external amount, their fee
// and what their outputs represent. Both consume the caller's (up to) two
// largest UTXOs, padded with zero placeholders, and produce two outputs at
// the next two tree positions.

package transact

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"privacycash/internal/chain"
	"privacycash/internal/log"
	"privacycash/internal/prover"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
	"privacycash/internal/wallet"
)

// Arity is the number of inputs and outputs of every transaction.
const Arity = 2

// Tree is the remote tree oracle and fee schedule.
type Tree interface {
	QueryTreeState(ctx context.Context, asset shielded.Asset) (*shielded.TreeState, error)
	FetchMerkleProof(ctx context.Context, commitment *big.Int, asset shielded.Asset) (*shielded.MerklePath, error)
	FeeConfig(ctx context.Context) (*relay.FeeConfig, error)
}

// Plan is the value flow of one transaction.
type Plan struct {
	ExtAmount int64
	Fee       uint64
	Outputs   [Arity]*big.Int
}

// Planner computes the value flow once the input total and fee schedule are known.
type Planner func(inputTotal *big.Int, fees *relay.FeeConfig) (*Plan, error)

// Request describes one transaction to build.
type Request struct {
	Asset        shielded.Asset
	Keys         *shielded.EncryptionService
	Inputs       []*wallet.Note
	Recipient    solana.PublicKey
	FeeRecipient solana.PublicKey
	Plan         Planner
}

// Result is a proved transaction together with everything needed to
// assemble, submit and confirm it.
type Result struct {
	Transact         *chain.Transact
	Plan             *Plan
	Tree             *shielded.TreeState
	Inputs           [Arity]*shielded.Utxo
	Outputs          [Arity]*shielded.Utxo
	EncryptedOutputs [Arity][]byte
	Fees             *relay.FeeConfig
}

// Builder proves transactions against the remote tree.
type Builder struct {
	tree   Tree
	prover prover.Prover
}

func NewBuilder(tree Tree, backend prover.Prover) *Builder {
	return &Builder{tree: tree, prover: backend}
}

// Build runs the shared pipeline: tree state, input paths, plan, outputs,
// circuit inputs, proof and encoding.
func (b *Builder) Build(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Inputs) > Arity {
		return nil, fmt.Errorf("at most %d inputs, got %d", Arity, len(req.Inputs))
	}
	kp, err := req.Keys.Keypair(shielded.V2)
	if err != nil {
		return nil, err
	}

	// Step 1: tree state, fetched once
	tree, err := b.tree.QueryTreeState(ctx, req.Asset)
	if err != nil {
		return nil, err
	}

	// Step 2: inputs padded with placeholders
	res := &Result{Tree: tree}
	for i := 0; i < Arity; i++ {
		if i < len(req.Inputs) {
			res.Inputs[i] = req.Inputs[i].Utxo
			continue
		}
		res.Inputs[i], err = shielded.NewZeroUtxo(kp, req.Asset.Mint)
		if err != nil {
			return nil, err
		}
	}

	// Step 3: Merkle paths and fee schedule, concurrently
	var paths [Arity]*shielded.MerklePath
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range res.Inputs {
		g.Go(func() error {
			p, err := b.inputPath(gctx, in, req.Asset, tree.Root)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			paths[i] = p
			return nil
		})
	}
	g.Go(func() error {
		fees, err := b.tree.FeeConfig(gctx)
		res.Fees = fees
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 4: value flow
	total := new(big.Int)
	for _, in := range res.Inputs {
		total.Add(total, in.Amount())
	}
	plan, err := req.Plan(total, res.Fees)
	if err != nil {
		return nil, err
	}
	if err := checkBalance(total, plan); err != nil {
		return nil, err
	}
	res.Plan = plan

	// Step 5: outputs at the next two positions
	for i, amount := range plan.Outputs {
		out, err := shielded.NewUtxo(amount, kp, req.Asset.Mint)
		if err != nil {
			return nil, err
		}
		out.SetIndex(tree.NextIndex + uint64(i))
		enc, err := req.Keys.EncryptUtxo(out)
		if err != nil {
			return nil, err
		}
		res.Outputs[i] = out
		res.EncryptedOutputs[i] = enc
	}

	// Step 6: external data
	mint, err := chain.MintKey(req.Asset)
	if err != nil {
		return nil, err
	}
	feeRecipient := req.FeeRecipient
	if res.Fees.FeeRecipient != "" {
		feeRecipient, err = solana.PublicKeyFromBase58(res.Fees.FeeRecipient)
		if err != nil {
			return nil, fmt.Errorf("fee recipient %q: %w", res.Fees.FeeRecipient, err)
		}
	}
	ext := &chain.ExtData{
		Recipient:        req.Recipient,
		ExtAmount:        plan.ExtAmount,
		EncryptedOutput1: res.EncryptedOutputs[0],
		EncryptedOutput2: res.EncryptedOutputs[1],
		Fee:              plan.Fee,
		FeeRecipient:     feeRecipient,
		Mint:             mint,
	}

	// Step 7: circuit inputs
	inputs, nullifiers, err := BuildFieldMap(tree.Root, res.Inputs, paths, res.Outputs, ext, req.Asset)
	if err != nil {
		return nil, err
	}

	// Step 8: prove and encode
	proof, err := prover.Run(ctx, b.prover, inputs)
	if err != nil {
		return nil, err
	}
	encoded, err := prover.Encode(proof)
	if err != nil {
		return nil, err
	}
	res.Transact = &chain.Transact{
		Asset:      req.Asset,
		Proof:      encoded,
		ExtData:    ext,
		Nullifiers: nullifiers,
	}
	log.Debugw("transaction proved",
		"asset", req.Asset.Name,
		"extAmount", plan.ExtAmount,
		"fee", plan.Fee,
		"nextIndex", tree.NextIndex,
	)
	return res, nil
}

// inputPath returns the Merkle path of an input and checks it against root.
// Placeholders get the all-zero path without a network round trip.
func (b *Builder) inputPath(ctx context.Context, in *shielded.Utxo, asset shielded.Asset, root *big.Int) (*shielded.MerklePath, error) {
	if in.IsZero() {
		return shielded.ZeroPath()
	}
	cm, err := in.Commitment()
	if err != nil {
		return nil, err
	}
	path, err := b.tree.FetchMerkleProof(ctx, cm, asset)
	if err != nil {
		return nil, err
	}
	idx, _ := in.Index()
	got, err := path.ComputeRoot(cm, idx)
	if err != nil {
		return nil, err
	}
	if got.Cmp(root) != 0 {
		return nil, &relay.ProtocolError{
			Path:    "merkle/proof/" + cm.String(),
			Message: fmt.Sprintf("path of leaf %d does not lead to root %s", idx, root),
		}
	}
	return path, nil
}

// checkBalance enforces inputs + extAmount - fee == outputs.
func checkBalance(total *big.Int, p *Plan) error {
	in := new(big.Int).Add(total, big.NewInt(p.ExtAmount))
	in.Sub(in, new(big.Int).SetUint64(p.Fee))
	out := new(big.Int)
	for i, o := range p.Outputs {
		if o == nil || o.Sign() < 0 {
			return fmt.Errorf("output %d amount must be non-negative", i)
		}
		out.Add(out, o)
	}
	if in.Cmp(out) != 0 {
		return fmt.Errorf("unbalanced transaction: inputs %s, outputs %s", in, out)
	}
	return nil
}

// BuildFieldMap fills the circuit input map of a transaction and returns
// the input nullifiers.
func BuildFieldMap(
	root *big.Int,
	inputs [Arity]*shielded.Utxo,
	paths [Arity]*shielded.MerklePath,
	outputs [Arity]*shielded.Utxo,
	ext *chain.ExtData,
	asset shielded.Asset,
) (*prover.FieldMap, [Arity]*big.Int, error) {
	var nullifiers [Arity]*big.Int
	extHash, err := ext.Hash()
	if err != nil {
		return nil, nullifiers, err
	}
	mintField, err := shielded.MintField(asset.Mint)
	if err != nil {
		return nil, nullifiers, err
	}
	m := &prover.FieldMap{
		Root:         root,
		PublicAmount: shielded.PublicAmount(ext.ExtAmount, ext.Fee),
		ExtDataHash:  extHash,
		MintAddress:  mintField,
	}
	for i, in := range inputs {
		nf, err := in.Nullifier()
		if err != nil {
			return nil, nullifiers, fmt.Errorf("input %d: %w", i, err)
		}
		idx, _ := in.Index()
		nullifiers[i] = nf
		m.InputNullifier[i] = nf
		m.InAmount[i] = in.Amount()
		m.InPrivateKey[i] = in.Keypair().PrivKey
		m.InBlinding[i] = in.Blinding()
		m.InPathIndices[i] = new(big.Int).SetUint64(idx)
		if len(paths[i].PathElements) != shielded.TreeDepth {
			return nil, nullifiers, fmt.Errorf("input %d: path has %d elements", i, len(paths[i].PathElements))
		}
		copy(m.InPathElements[i][:], paths[i].PathElements)
	}
	for i, out := range outputs {
		cm, err := out.Commitment()
		if err != nil {
			return nil, nullifiers, fmt.Errorf("output %d: %w", i, err)
		}
		m.OutputCommitment[i] = cm
		m.OutAmount[i] = out.Amount()
		m.OutBlinding[i] = out.Blinding()
		m.OutPubkey[i] = out.Keypair().PubKey
	}
	return m, nullifiers, nil
}
