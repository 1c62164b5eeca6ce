// extdata.go - Public transaction metadata bound into the proof.

package chain

import (
	"bytes"
	"crypto/sha256"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"privacycash/internal/shielded"
)

// ExtData is the public part of a transaction. Its hash is a public input
// of the proof, so none of it can change after proving.
type ExtData struct {
	Recipient        solana.PublicKey
	ExtAmount        int64
	EncryptedOutput1 []byte
	EncryptedOutput2 []byte
	Fee              uint64
	FeeRecipient     solana.PublicKey
	Mint             solana.PublicKey
}

// MarshalBorsh encodes the fields in program order.
func (e *ExtData) MarshalBorsh() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(e.Recipient[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteInt64(e.ExtAmount, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(e.EncryptedOutput1, true); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(e.EncryptedOutput2, true); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(e.Fee, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(e.FeeRecipient[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(e.Mint[:], false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns SHA-256(borsh(ExtData)) reduced into the scalar field.
func (e *ExtData) Hash() (*big.Int, error) {
	raw, err := e.MarshalBorsh()
	if err != nil {
		return nil, errors.Wrap(err, "encode ext data")
	}
	sum := sha256.Sum256(raw)
	return shielded.FieldFromBytes(sum[:]), nil
}

// MintKey maps an asset to the mint account written into ExtData. The
// native asset uses the sentinel address.
func MintKey(asset shielded.Asset) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(asset.Mint)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "mint %s", asset.Mint)
	}
	return pk, nil
}
