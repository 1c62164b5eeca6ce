package prover

import (
	"github.com/consensys/gnark/frontend"
)

// amountBits bounds output amounts so they cannot wrap around the field.
const amountBits = 248

// TransactCircuit is a value-conservation circuit with the public layout of
// the pool's transaction circuit. It backs the local gnark prover used on
// devnets and in tests.
type TransactCircuit struct {
	// Public inputs, in verifier order
	Root             frontend.Variable    `gnark:",public"`
	PublicAmount     frontend.Variable    `gnark:",public"`
	ExtDataHash      frontend.Variable    `gnark:",public"`
	InputNullifier   [2]frontend.Variable `gnark:",public"`
	OutputCommitment [2]frontend.Variable `gnark:",public"`

	// Private inputs
	InAmount  [2]frontend.Variable
	OutAmount [2]frontend.Variable
}

func (c *TransactCircuit) Define(api frontend.API) error {
	// Step 1: range-check outputs
	for i := range c.OutAmount {
		api.ToBinary(c.OutAmount[i], amountBits)
	}

	// Step 2: sum(in) + publicAmount == sum(out) in the field
	sumIn := api.Add(c.InAmount[0], c.InAmount[1], c.PublicAmount)
	sumOut := api.Add(c.OutAmount[0], c.OutAmount[1])
	api.AssertIsEqual(sumIn, sumOut)

	// Step 3: a transaction cannot spend the same input twice
	api.AssertIsDifferent(c.InputNullifier[0], c.InputNullifier[1])
	return nil
}

func assignment(in *FieldMap) *TransactCircuit {
	return &TransactCircuit{
		Root:             in.Root,
		PublicAmount:     in.PublicAmount,
		ExtDataHash:      in.ExtDataHash,
		InputNullifier:   [2]frontend.Variable{in.InputNullifier[0], in.InputNullifier[1]},
		OutputCommitment: [2]frontend.Variable{in.OutputCommitment[0], in.OutputCommitment[1]},
		InAmount:         [2]frontend.Variable{in.InAmount[0], in.InAmount[1]},
		OutAmount:        [2]frontend.Variable{in.OutAmount[0], in.OutAmount[1]},
	}
}
