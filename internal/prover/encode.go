// encode.go - Byte encoding of Groth16 proofs for the on-chain verifier.
//
// Every coordinate is written as a 32-byte little-endian integer and then
// reversed, giving the big-endian layout the verifier reads. G2 coordinate
// pairs are flattened (c0, c1) before the reversal, so each pair lands as
// c1 || c0.

package prover

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"

	"privacycash/internal/shielded"
)

// EncodedProof is the verifier's view of a proof and its public signals.
type EncodedProof struct {
	A       [64]byte
	B       [128]byte
	C       [64]byte
	Signals [PublicSignalCount][32]byte
}

// Encode validates the proof points and serializes them with the public signals.
func Encode(p *Proof) (*EncodedProof, error) {
	if len(p.A) < 2 || len(p.C) < 2 || len(p.B) < 2 || len(p.B[0]) < 2 || len(p.B[1]) < 2 {
		return nil, fmt.Errorf("%w: truncated proof", ErrInvalidProofPoint)
	}
	if len(p.PublicSignals) != PublicSignalCount {
		return nil, fmt.Errorf("%w: got %d signals", ErrPublicSignalMismatch, len(p.PublicSignals))
	}

	// Step 1: curve membership
	var a, c bn254.G1Affine
	if err := setG1(&a, p.A[0], p.A[1]); err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	if err := setG1(&c, p.C[0], p.C[1]); err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	var b bn254.G2Affine
	if err := setG2(&b, p.B); err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}

	// Step 2: serialize
	out := &EncodedProof{}
	for i, s := range []string{p.A[0], p.A[1]} {
		v, err := beFromLE(s)
		if err != nil {
			return nil, err
		}
		copy(out.A[i*32:], v)
	}
	for i, s := range []string{p.C[0], p.C[1]} {
		v, err := beFromLE(s)
		if err != nil {
			return nil, err
		}
		copy(out.C[i*32:], v)
	}
	for i := 0; i < 2; i++ {
		pair, err := beFromLE(p.B[i][0], p.B[i][1])
		if err != nil {
			return nil, err
		}
		copy(out.B[i*64:], pair)
	}
	for i, s := range p.PublicSignals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 || v.Cmp(shielded.FieldSize()) >= 0 {
			return nil, fmt.Errorf("%w: signal %d is not a field element", ErrPublicSignalMismatch, i)
		}
		out.Signals[i] = shielded.FieldBytes(v)
	}
	return out, nil
}

// Bytes returns A || B || C.
func (e *EncodedProof) Bytes() []byte {
	out := make([]byte, 0, 256)
	out = append(out, e.A[:]...)
	out = append(out, e.B[:]...)
	return append(out, e.C[:]...)
}

// beFromLE writes each value as 32-byte little-endian, concatenates them
// and reverses the whole buffer.
func beFromLE(values ...string) ([]byte, error) {
	buf := make([]byte, 0, 32*len(values))
	for _, s := range values {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 || v.BitLen() > 256 {
			return nil, fmt.Errorf("%w: bad coordinate %q", ErrInvalidProofPoint, s)
		}
		buf = append(buf, leBytes32(v)...)
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf, nil
}

func leBytes32(v *big.Int) []byte {
	var be [32]byte
	v.FillBytes(be[:])
	le := make([]byte, 32)
	for i := range be {
		le[i] = be[31-i]
	}
	return le
}

// setFp accepts only canonical base field elements.
func setFp(e *fp.Element, s string) error {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return fmt.Errorf("%w: coordinate %q is not a base field element", ErrInvalidProofPoint, s)
	}
	e.SetBigInt(v)
	return nil
}

func setG1(p *bn254.G1Affine, x, y string) error {
	if err := setFp(&p.X, x); err != nil {
		return err
	}
	if err := setFp(&p.Y, y); err != nil {
		return err
	}
	if !p.IsOnCurve() {
		return ErrInvalidProofPoint
	}
	return nil
}

func setG2(p *bn254.G2Affine, b [][]string) error {
	for _, kv := range []struct {
		dst *fp.Element
		src string
	}{
		{&p.X.A0, b[0][0]}, {&p.X.A1, b[0][1]},
		{&p.Y.A0, b[1][0]}, {&p.Y.A1, b[1][1]},
	} {
		if err := setFp(kv.dst, kv.src); err != nil {
			return err
		}
	}
	if !p.IsOnCurve() {
		return ErrInvalidProofPoint
	}
	return nil
}
