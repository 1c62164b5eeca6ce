// circom.go - Groth16 backend over the circom transaction circuit.
//
// The witness is computed from the circuit's wasm build and the proof is
// produced by rapidsnark from the snarkjs proving key.

package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"

	"privacycash/internal/log"
)

var (
	ErrParsingWitness  = fmt.Errorf("error parsing circuit inputs")
	ErrInitWitnessCalc = fmt.Errorf("error loading circuit wasm")
	ErrWitnessCalc     = fmt.Errorf("error during witness calculation")
	ErrProofGen        = fmt.Errorf("error during rapidsnark proof generation")
	ErrParseProofData  = fmt.Errorf("error parsing rapidsnark proof output")
)

// CircomArtifacts locates the compiled circuit and its proving key.
type CircomArtifacts struct {
	WasmPath string
	ZkeyPath string
}

// CircomProver proves with a circom wasm witness calculator and rapidsnark.
type CircomProver struct {
	artifacts CircomArtifacts

	once sync.Once
	wasm []byte
	zkey []byte
	err  error
}

// NewCircomProver returns a prover that reads its artifacts on first use.
func NewCircomProver(a CircomArtifacts) *CircomProver {
	return &CircomProver{artifacts: a}
}

func (p *CircomProver) load() error {
	p.once.Do(func() {
		if p.wasm, p.err = os.ReadFile(p.artifacts.WasmPath); p.err != nil {
			p.err = fmt.Errorf("read circuit wasm: %w", p.err)
			return
		}
		if p.zkey, p.err = os.ReadFile(p.artifacts.ZkeyPath); p.err != nil {
			p.err = fmt.Errorf("read proving key: %w", p.err)
			return
		}
		log.Infow("circuit artifacts loaded", "wasm", p.artifacts.WasmPath, "zkey", p.artifacts.ZkeyPath,
			"zkeyBytes", len(p.zkey))
	})
	return p.err
}

// Prove implements Prover.
func (p *CircomProver) Prove(ctx context.Context, inputs *FieldMap) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingWitness, err)
	}
	wtns, err := calcWitness(p.wasm, inputsJSON)
	if err != nil {
		return nil, err
	}
	proofData, pubSignals, err := prover.Groth16ProverRaw(p.zkey, wtns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGen, err)
	}
	return parseProof([]byte(proofData), []byte(pubSignals))
}

// calcWitness runs the wasm witness calculator. The calculator panics on
// malformed inputs; the panic is turned into an error.
func calcWitness(wasmBytes, inputsBytes []byte) (res []byte, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("%w: %v", ErrParsingWitness, r)
		}
	}()
	inputs, err := witness.ParseInputs(inputsBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingWitness, err)
	}
	calculator, err := witness.NewCircom2WitnessCalculator(wasmBytes, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitWitnessCalc, err)
	}
	wtns, err := calculator.CalculateWTNSBin(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessCalc, err)
	}
	return wtns, nil
}

func parseProof(proofData, pubSignals []byte) (*Proof, error) {
	p := &Proof{}
	if err := json.Unmarshal(proofData, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseProofData, err)
	}
	if err := json.Unmarshal(pubSignals, &p.PublicSignals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseProofData, err)
	}
	return p, nil
}
