package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/stretchr/testify/require"

	"privacycash/internal/shielded"
)

func testInputs(in0, in1 int64, extAmount int64, fee uint64, out0, out1 int64) *FieldMap {
	m := &FieldMap{
		Root:             big.NewInt(11),
		InputNullifier:   [2]*big.Int{big.NewInt(21), big.NewInt(22)},
		OutputCommitment: [2]*big.Int{big.NewInt(31), big.NewInt(32)},
		PublicAmount:     shielded.PublicAmount(extAmount, fee),
		ExtDataHash:      big.NewInt(41),
		InAmount:         [2]*big.Int{big.NewInt(in0), big.NewInt(in1)},
		InPrivateKey:     [2]*big.Int{big.NewInt(51), big.NewInt(52)},
		InBlinding:       [2]*big.Int{big.NewInt(61), big.NewInt(62)},
		InPathIndices:    [2]*big.Int{big.NewInt(0), big.NewInt(1)},
		OutAmount:        [2]*big.Int{big.NewInt(out0), big.NewInt(out1)},
		OutBlinding:      [2]*big.Int{big.NewInt(71), big.NewInt(72)},
		OutPubkey:        [2]*big.Int{big.NewInt(81), big.NewInt(82)},
		MintAddress:      big.NewInt(1),
	}
	for i := range m.InPathElements {
		for j := range m.InPathElements[i] {
			m.InPathElements[i][j] = big.NewInt(int64(j))
		}
	}
	return m
}

type stubProver struct {
	proof *Proof
	err   error
}

func (s stubProver) Prove(context.Context, *FieldMap) (*Proof, error) { return s.proof, s.err }

func generatorProof(signals []*big.Int) *Proof {
	_, _, g1, g2 := bn254.Generators()
	p := &Proof{
		A: []string{g1.X.String(), g1.Y.String(), "1"},
		B: [][]string{{g2.X.A0.String(), g2.X.A1.String()}, {g2.Y.A0.String(), g2.Y.A1.String()}, {"1", "0"}},
		C: []string{g1.X.String(), g1.Y.String(), "1"},
	}
	for _, s := range signals {
		p.PublicSignals = append(p.PublicSignals, s.String())
	}
	return p
}

func TestFieldMapJSON(t *testing.T) {
	m := testInputs(500, 300, 200, 0, 1000, 0)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	keys := []string{
		`"root"`, `"inputNullifier"`, `"outputCommitment"`, `"publicAmount"`, `"extDataHash"`,
		`"inAmount"`, `"inPrivateKey"`, `"inBlinding"`, `"inPathIndices"`, `"inPathElements"`,
		`"outAmount"`, `"outBlinding"`, `"outPubkey"`, `"mintAddress"`,
	}
	last := -1
	for _, k := range keys {
		i := bytes.Index(data, []byte(k))
		require.Greater(t, i, last, "key %s out of order", k)
		last = i
	}
	require.Contains(t, string(data), `"inAmount":["500","300"]`)

	t.Run("unset input is rejected", func(t *testing.T) {
		m := testInputs(1, 2, 0, 0, 3, 0)
		m.OutPubkey[1] = nil
		_, err := json.Marshal(m)
		require.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	m := testInputs(500, 300, 200, 0, 1000, 0)
	sig := m.PublicSignals()

	t.Run("accepts matching signals", func(t *testing.T) {
		p, err := Run(ctx, stubProver{proof: generatorProof(sig[:])}, m)
		require.NoError(t, err)
		require.Len(t, p.PublicSignals, PublicSignalCount)
	})

	t.Run("backend error", func(t *testing.T) {
		_, err := Run(ctx, stubProver{err: errors.New("wasm trap")}, m)
		require.ErrorIs(t, err, ErrProofGenerationFailed)
	})

	t.Run("signal mismatch", func(t *testing.T) {
		bad := append([]*big.Int(nil), sig[:]...)
		bad[2] = big.NewInt(999)
		_, err := Run(ctx, stubProver{proof: generatorProof(bad)}, m)
		require.ErrorIs(t, err, ErrProofGenerationFailed)
		require.ErrorIs(t, err, ErrPublicSignalMismatch)
	})
}

func TestEncode(t *testing.T) {
	m := testInputs(500, 300, 200, 0, 1000, 0)
	sig := m.PublicSignals()
	p := generatorProof(sig[:])

	enc, err := Encode(p)
	require.NoError(t, err)

	_, _, g1, g2 := bn254.Generators()
	x := g1.X.Bytes()
	y := g1.Y.Bytes()
	require.Equal(t, x[:], enc.A[:32])
	require.Equal(t, y[:], enc.A[32:])
	require.Equal(t, enc.A, enc.C)

	// G2 pairs land as c1 || c0.
	xa1, xa0 := g2.X.A1.Bytes(), g2.X.A0.Bytes()
	ya1, ya0 := g2.Y.A1.Bytes(), g2.Y.A0.Bytes()
	require.Equal(t, xa1[:], enc.B[0:32])
	require.Equal(t, xa0[:], enc.B[32:64])
	require.Equal(t, ya1[:], enc.B[64:96])
	require.Equal(t, ya0[:], enc.B[96:128])

	for i, s := range sig {
		require.Equal(t, shielded.FieldBytes(s), enc.Signals[i])
	}
	require.Len(t, enc.Bytes(), 256)

	t.Run("off-curve point", func(t *testing.T) {
		bad := generatorProof(sig[:])
		bad.A[1] = "5"
		_, err := Encode(bad)
		require.ErrorIs(t, err, ErrInvalidProofPoint)
	})

	t.Run("unreduced coordinate", func(t *testing.T) {
		_, _, g1, g2 := bn254.Generators()
		shifted := func(v *big.Int) string { return new(big.Int).Add(v, fp.Modulus()).String() }

		bad := generatorProof(sig[:])
		bad.A[0] = shifted(g1.X.BigInt(new(big.Int)))
		_, err := Encode(bad)
		require.ErrorIs(t, err, ErrInvalidProofPoint)

		bad = generatorProof(sig[:])
		bad.B[1][0] = shifted(g2.Y.A0.BigInt(new(big.Int)))
		_, err = Encode(bad)
		require.ErrorIs(t, err, ErrInvalidProofPoint)
	})

	t.Run("wrong signal count", func(t *testing.T) {
		bad := generatorProof(sig[:3])
		_, err := Encode(bad)
		require.ErrorIs(t, err, ErrPublicSignalMismatch)
	})
}

func TestGnarkProver(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup")
	}
	ctx := context.Background()
	g, err := NewGnarkProver("", "")
	require.NoError(t, err)

	t.Run("deposit consolidates", func(t *testing.T) {
		m := testInputs(500, 300, 200, 0, 1000, 0)
		p, err := Run(ctx, g, m)
		require.NoError(t, err)
		_, err = Encode(p)
		require.NoError(t, err)
	})

	t.Run("withdraw with negative public amount", func(t *testing.T) {
		m := testInputs(1000, 0, -400, 35, 565, 0)
		_, err := Run(ctx, g, m)
		require.NoError(t, err)
	})

	t.Run("unbalanced inputs fail", func(t *testing.T) {
		m := testInputs(1000, 0, -400, 35, 600, 0)
		_, err := Run(ctx, g, m)
		require.ErrorIs(t, err, ErrProofGenerationFailed)
	})
}
