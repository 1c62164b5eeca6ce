// Package prover builds circuit inputs, runs a Groth16 backend over them and
// encodes the resulting proof for the on-chain verifier.
package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrProofGenerationFailed = errors.New("proof generation failed")
	ErrPublicSignalMismatch  = errors.New("public signal mismatch")
	ErrInvalidProofPoint     = errors.New("proof point is not on the curve")
)

// Proof is a Groth16 proof in snarkjs decimal-string form together with its
// public signals.
type Proof struct {
	A             []string   `json:"pi_a"`
	B             [][]string `json:"pi_b"`
	C             []string   `json:"pi_c"`
	PublicSignals []string   `json:"publicSignals"`
}

// Prover generates a proof for a complete circuit input map.
type Prover interface {
	Prove(ctx context.Context, inputs *FieldMap) (*Proof, error)
}

// CheckPublicSignals compares the prover's public signals with the values
// computed locally from the inputs.
func CheckPublicSignals(p *Proof, inputs *FieldMap) error {
	want := inputs.PublicSignals()
	if len(p.PublicSignals) != len(want) {
		return fmt.Errorf("%w: got %d signals, want %d", ErrPublicSignalMismatch, len(p.PublicSignals), len(want))
	}
	names := [PublicSignalCount]string{"root", "publicAmount", "extDataHash", "nullifier0", "nullifier1", "commitment0", "commitment1"}
	for i, s := range p.PublicSignals {
		got, ok := new(big.Int).SetString(s, 10)
		if !ok || got.Cmp(want[i]) != 0 {
			return fmt.Errorf("%w: %s is %s, want %s", ErrPublicSignalMismatch, names[i], s, want[i])
		}
	}
	return nil
}

// Run proves inputs with backend and checks the returned public signals.
// Backend failures are wrapped in ErrProofGenerationFailed.
func Run(ctx context.Context, backend Prover, inputs *FieldMap) (*Proof, error) {
	if err := inputs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGenerationFailed, err)
	}
	p, err := backend.Prove(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGenerationFailed, err)
	}
	if err := CheckPublicSignals(p, inputs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGenerationFailed, err)
	}
	return p, nil
}
