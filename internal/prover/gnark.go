// gnark.go - Local Groth16 backend over TransactCircuit.

package prover

import (
	"context"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// GnarkProver proves TransactCircuit in-process.
type GnarkProver struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewGnarkProver compiles the circuit and loads or creates its keys.
func NewGnarkProver(pkPath, vkPath string) (*GnarkProver, error) {
	var circuit TransactCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit,
		frontend.IgnoreUnconstrainedInputs())
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, vk, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		return nil, fmt.Errorf("groth16 keys: %w", err)
	}
	return &GnarkProver{ccs: ccs, pk: pk, vk: vk}, nil
}

// VerifyingKey exposes the verifying key, e.g. for export to a devnet verifier.
func (g *GnarkProver) VerifyingKey() groth16.VerifyingKey { return g.vk }

// Prove implements Prover.
func (g *GnarkProver) Prove(ctx context.Context, inputs *FieldMap) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 1: witness
	w, err := frontend.NewWitness(assignment(inputs), ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness: %w", err)
	}
	pub, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness: %w", err)
	}

	// Step 2: prove and self-check
	proof, err := groth16.Prove(g.ccs, g.pk, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}
	if err := groth16.Verify(proof, g.vk, pub); err != nil {
		return nil, fmt.Errorf("groth16 self-verify: %w", err)
	}

	// Step 3: snarkjs form
	bp, ok := proof.(*groth16bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type %T", proof)
	}
	signals := inputs.PublicSignals()
	out := &Proof{
		A:             g1Strings(&bp.Ar),
		B:             g2Strings(&bp.Bs),
		C:             g1Strings(&bp.Krs),
		PublicSignals: make([]string, len(signals)),
	}
	for i, s := range signals {
		out.PublicSignals[i] = new(big.Int).Set(s).String()
	}
	return out, nil
}

func g1Strings(p *bn254.G1Affine) []string {
	return []string{p.X.String(), p.Y.String(), "1"}
}

func g2Strings(p *bn254.G2Affine) [][]string {
	return [][]string{
		{p.X.A0.String(), p.X.A1.String()},
		{p.Y.A0.String(), p.Y.A1.String()},
		{"1", "0"},
	}
}
