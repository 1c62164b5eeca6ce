// keys.go - Spending keypairs and sign-in key derivation.
//
// The client signs a fixed sign-in message once; both generations of
// symmetric keys and spending keys are derived from that signature.

package shielded

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// SignInMessage is the message the client signs to unlock its shielded account.
const SignInMessage = "Privacy Money account sign in"

const v1KeySize = 31

// Version identifies a key and ciphertext generation.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("v%d", uint8(v))
	}
}

// Keypair is a shielded spending keypair.
type Keypair struct {
	PrivKey *big.Int
	PubKey  *big.Int
}

// NewKeypair builds a keypair from a private scalar, reducing it into the field.
func NewKeypair(priv *big.Int) (*Keypair, error) {
	sk := Reduce(priv)
	pk, err := Poseidon(sk)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &Keypair{PrivKey: sk, PubKey: pk}, nil
}

// Sign computes Poseidon(privkey, commitment, index), the nullifier authorisation.
func (k *Keypair) Sign(commitment, index *big.Int) (*big.Int, error) {
	return Poseidon(k.PrivKey, commitment, index)
}

// EncryptionService holds the symmetric keys and spending keypairs of one
// account for both key generations.
type EncryptionService struct {
	keyV1 []byte
	keyV2 []byte
	kpV1  *Keypair
	kpV2  *Keypair
}

// DeriveKeys derives both key generations from a sign-in signature.
func DeriveKeys(signature []byte) (*EncryptionService, error) {
	s := &EncryptionService{}
	if err := s.DeriveFromSignature(signature); err != nil {
		return nil, err
	}
	return s, nil
}

// DeriveFromSignature (re)derives all keys from the given signature.
func (s *EncryptionService) DeriveFromSignature(signature []byte) error {
	if len(signature) < v1KeySize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(signature))
	}

	// Step 1: v1 symmetric key and spending seed
	keyV1 := make([]byte, v1KeySize)
	copy(keyV1, signature[:v1KeySize])
	seedV1 := sha256.Sum256(keyV1)
	kpV1, err := NewKeypair(new(big.Int).SetBytes(seedV1[:]))
	if err != nil {
		return err
	}

	// Step 2: v2 symmetric key and spending seed
	keyV2 := keccak256(signature)
	kpV2, err := NewKeypair(new(big.Int).SetBytes(keccak256(keyV2)))
	if err != nil {
		return err
	}

	s.keyV1, s.keyV2 = keyV1, keyV2
	s.kpV1, s.kpV2 = kpV1, kpV2
	return nil
}

// Derived reports whether keys are available.
func (s *EncryptionService) Derived() bool {
	return s != nil && s.keyV1 != nil && s.keyV2 != nil
}

// Keypair returns the spending keypair of the given generation.
func (s *EncryptionService) Keypair(v Version) (*Keypair, error) {
	if !s.Derived() {
		return nil, ErrKeyNotDerived
	}
	switch v {
	case V1:
		return s.kpV1, nil
	case V2:
		return s.kpV2, nil
	default:
		return nil, fmt.Errorf("unknown key version %d", v)
	}
}

func keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}
