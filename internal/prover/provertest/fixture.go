// Package provertest provides a deterministic Prover for tests.
package provertest

import (
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"privacycash/internal/prover"
)

// FixtureProver returns the curve generators as proof points and echoes the
// public signals of its inputs.
type FixtureProver struct {
	mu     sync.Mutex
	calls  []*prover.FieldMap
	Err    error
	Tamper func(*prover.Proof)
}

// Prove implements prover.Prover.
func (f *FixtureProver) Prove(_ context.Context, inputs *prover.FieldMap) (*prover.Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inputs)
	if f.Err != nil {
		return nil, f.Err
	}
	_, _, g1, g2 := bn254.Generators()
	p := &prover.Proof{
		A: []string{g1.X.String(), g1.Y.String(), "1"},
		B: [][]string{
			{g2.X.A0.String(), g2.X.A1.String()},
			{g2.Y.A0.String(), g2.Y.A1.String()},
			{"1", "0"},
		},
		C: []string{g1.X.String(), g1.Y.String(), "1"},
	}
	for _, s := range inputs.PublicSignals() {
		p.PublicSignals = append(p.PublicSignals, s.String())
	}
	if f.Tamper != nil {
		f.Tamper(p)
	}
	return p, nil
}

// Calls returns the inputs of every Prove call.
func (f *FixtureProver) Calls() []*prover.FieldMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*prover.FieldMap(nil), f.calls...)
}
