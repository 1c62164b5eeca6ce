// inputs.go - Circuit input map for the 2-input / 2-output transaction circuit.

package prover

import (
	"encoding/json"
	"fmt"
	"math/big"

	"privacycash/internal/shielded"
)

// PublicSignalCount is the number of public signals of the circuit.
const PublicSignalCount = 7

// FieldMap holds every circuit input. JSON encoding emits the keys in the
// order the circuit declares them, values as decimal strings.
type FieldMap struct {
	Root             *big.Int
	InputNullifier   [2]*big.Int
	OutputCommitment [2]*big.Int
	PublicAmount     *big.Int
	ExtDataHash      *big.Int
	InAmount         [2]*big.Int
	InPrivateKey     [2]*big.Int
	InBlinding       [2]*big.Int
	InPathIndices    [2]*big.Int
	InPathElements   [2][shielded.TreeDepth]*big.Int
	OutAmount        [2]*big.Int
	OutBlinding      [2]*big.Int
	OutPubkey        [2]*big.Int
	MintAddress      *big.Int
}

type fieldMapJSON struct {
	Root             string                        `json:"root"`
	InputNullifier   [2]string                     `json:"inputNullifier"`
	OutputCommitment [2]string                     `json:"outputCommitment"`
	PublicAmount     string                        `json:"publicAmount"`
	ExtDataHash      string                        `json:"extDataHash"`
	InAmount         [2]string                     `json:"inAmount"`
	InPrivateKey     [2]string                     `json:"inPrivateKey"`
	InBlinding       [2]string                     `json:"inBlinding"`
	InPathIndices    [2]string                     `json:"inPathIndices"`
	InPathElements   [2][shielded.TreeDepth]string `json:"inPathElements"`
	OutAmount        [2]string                     `json:"outAmount"`
	OutBlinding      [2]string                     `json:"outBlinding"`
	OutPubkey        [2]string                     `json:"outPubkey"`
	MintAddress      string                        `json:"mintAddress"`
}

// PublicSignals returns root, publicAmount, extDataHash, the two nullifiers
// and the two output commitments, the order the verifier consumes them.
func (m *FieldMap) PublicSignals() [PublicSignalCount]*big.Int {
	return [PublicSignalCount]*big.Int{
		m.Root,
		m.PublicAmount,
		m.ExtDataHash,
		m.InputNullifier[0],
		m.InputNullifier[1],
		m.OutputCommitment[0],
		m.OutputCommitment[1],
	}
}

// Validate checks that every input is set and lies in the field.
func (m *FieldMap) Validate() error {
	check := func(name string, v *big.Int) error {
		if v == nil {
			return fmt.Errorf("circuit input %s is unset", name)
		}
		if v.Sign() < 0 || v.Cmp(shielded.FieldSize()) >= 0 {
			return fmt.Errorf("circuit input %s out of field range", name)
		}
		return nil
	}
	singles := map[string]*big.Int{
		"root":         m.Root,
		"publicAmount": m.PublicAmount,
		"extDataHash":  m.ExtDataHash,
		"mintAddress":  m.MintAddress,
	}
	for k, v := range singles {
		if err := check(k, v); err != nil {
			return err
		}
	}
	pairs := map[string][2]*big.Int{
		"inputNullifier":   m.InputNullifier,
		"outputCommitment": m.OutputCommitment,
		"inAmount":         m.InAmount,
		"inPrivateKey":     m.InPrivateKey,
		"inBlinding":       m.InBlinding,
		"inPathIndices":    m.InPathIndices,
		"outAmount":        m.OutAmount,
		"outBlinding":      m.OutBlinding,
		"outPubkey":        m.OutPubkey,
	}
	for k, p := range pairs {
		for i, v := range p {
			if err := check(fmt.Sprintf("%s[%d]", k, i), v); err != nil {
				return err
			}
		}
	}
	for i := range m.InPathElements {
		for j, v := range m.InPathElements[i] {
			if err := check(fmt.Sprintf("inPathElements[%d][%d]", i, j), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *FieldMap) MarshalJSON() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	pair := func(p [2]*big.Int) [2]string { return [2]string{p[0].String(), p[1].String()} }
	out := fieldMapJSON{
		Root:             m.Root.String(),
		InputNullifier:   pair(m.InputNullifier),
		OutputCommitment: pair(m.OutputCommitment),
		PublicAmount:     m.PublicAmount.String(),
		ExtDataHash:      m.ExtDataHash.String(),
		InAmount:         pair(m.InAmount),
		InPrivateKey:     pair(m.InPrivateKey),
		InBlinding:       pair(m.InBlinding),
		InPathIndices:    pair(m.InPathIndices),
		OutAmount:        pair(m.OutAmount),
		OutBlinding:      pair(m.OutBlinding),
		OutPubkey:        pair(m.OutPubkey),
		MintAddress:      m.MintAddress.String(),
	}
	for i := range m.InPathElements {
		for j, v := range m.InPathElements[i] {
			out.InPathElements[i][j] = v.String()
		}
	}
	return json.Marshal(out)
}
