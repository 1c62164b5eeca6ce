// crypto.go - Field arithmetic and Poseidon hashing for the shielded pool.
//
// All on-chain and in-circuit quantities are elements of the BN254 scalar field.
// Negative values (withdrawals) are represented as their positive residue.

package shielded

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// FieldElementSize is the byte width of a serialized field element.
const FieldElementSize = 32

var (
	ErrKeyNotDerived      = errors.New("encryption keys not derived")
	ErrMissingIndex       = errors.New("utxo has no tree index")
	ErrDecryptionMismatch = errors.New("ciphertext does not decrypt under this key")
	ErrInvalidSignature   = errors.New("invalid sign-in signature")
	ErrInvalidPlaintext   = errors.New("malformed utxo plaintext")
)

// fieldSize is the BN254 scalar field modulus (the circuit's FIELD_SIZE).
var fieldSize = fr.Modulus()

// FieldSize returns a copy of the circuit scalar field modulus.
func FieldSize() *big.Int {
	return new(big.Int).Set(fieldSize)
}

// Reduce maps any integer, negative ones included, into [0, FIELD_SIZE).
func Reduce(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, fieldSize)
	if r.Sign() < 0 {
		r.Add(r, fieldSize)
	}
	return r
}

// PublicAmount computes (extAmount - fee + FIELD_SIZE) mod FIELD_SIZE.
func PublicAmount(extAmount int64, fee uint64) *big.Int {
	x := new(big.Int).Sub(big.NewInt(extAmount), new(big.Int).SetUint64(fee))
	x.Add(x, fieldSize)
	return x.Mod(x, fieldSize)
}

// Poseidon hashes field elements with the circomlib Poseidon permutation.
func Poseidon(inputs ...*big.Int) (*big.Int, error) {
	h, err := poseidon.Hash(inputs)
	if err != nil {
		return nil, fmt.Errorf("poseidon hash failed: %w", err)
	}
	return h, nil
}

// RandomFieldElement samples a uniformly random field element.
func RandomFieldElement() (*big.Int, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, fmt.Errorf("random field element: %w", err)
	}
	return e.BigInt(new(big.Int)), nil
}

// FieldBytes encodes x as a 32-byte big-endian integer.
func FieldBytes(x *big.Int) [FieldElementSize]byte {
	var out [FieldElementSize]byte
	x.FillBytes(out[:])
	return out
}

// FieldFromBytes reduces a big-endian byte string into the field.
func FieldFromBytes(b []byte) *big.Int {
	return Reduce(new(big.Int).SetBytes(b))
}
