// encryption.go - Versioned symmetric encryption of UTXO plaintexts.
//
// v1 (legacy): IV(16) || HMAC tag(16) || AES-128-CTR ciphertext.
// v2 (current): 8-byte version tag || IV(12) || GCM tag(16) || AES-256-GCM ciphertext.
// Records are self-identifying: the v2 tag selects v2, anything else is v1.

package shielded

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

var v2Tag = [8]byte{0, 0, 0, 0, 0, 0, 0, 2}

const (
	v1IVSize  = 16
	v1TagSize = 16
	v2IVSize  = 12
	v2TagSize = 16
)

// Ciphertext is one encrypted-output record, either CiphertextV1 or CiphertextV2.
type Ciphertext interface {
	Version() Version
	Bytes() []byte
}

// CiphertextV1 is a legacy AES-CTR + truncated HMAC record.
type CiphertextV1 struct {
	IV   [v1IVSize]byte
	Tag  [v1TagSize]byte
	Body []byte
}

func (c *CiphertextV1) Version() Version { return V1 }

func (c *CiphertextV1) Bytes() []byte {
	out := make([]byte, 0, v1IVSize+v1TagSize+len(c.Body))
	out = append(out, c.IV[:]...)
	out = append(out, c.Tag[:]...)
	return append(out, c.Body...)
}

// CiphertextV2 is an AES-256-GCM record.
type CiphertextV2 struct {
	IV   [v2IVSize]byte
	Tag  [v2TagSize]byte
	Body []byte
}

func (c *CiphertextV2) Version() Version { return V2 }

func (c *CiphertextV2) Bytes() []byte {
	out := make([]byte, 0, len(v2Tag)+v2IVSize+v2TagSize+len(c.Body))
	out = append(out, v2Tag[:]...)
	out = append(out, c.IV[:]...)
	out = append(out, c.Tag[:]...)
	return append(out, c.Body...)
}

// ParseCiphertext splits a raw record into its versioned layout.
func ParseCiphertext(data []byte) (Ciphertext, error) {
	if len(data) >= len(v2Tag) && bytes.Equal(data[:len(v2Tag)], v2Tag[:]) {
		rest := data[len(v2Tag):]
		if len(rest) < v2IVSize+v2TagSize {
			return nil, fmt.Errorf("%w: v2 record too short (%d bytes)", ErrDecryptionMismatch, len(data))
		}
		c := &CiphertextV2{Body: append([]byte(nil), rest[v2IVSize+v2TagSize:]...)}
		copy(c.IV[:], rest[:v2IVSize])
		copy(c.Tag[:], rest[v2IVSize:v2IVSize+v2TagSize])
		return c, nil
	}
	if len(data) < v1IVSize+v1TagSize {
		return nil, fmt.Errorf("%w: v1 record too short (%d bytes)", ErrDecryptionMismatch, len(data))
	}
	c := &CiphertextV1{Body: append([]byte(nil), data[v1IVSize+v1TagSize:]...)}
	copy(c.IV[:], data[:v1IVSize])
	copy(c.Tag[:], data[v1IVSize:v1IVSize+v1TagSize])
	return c, nil
}

// Encrypt encrypts plaintext under the key of the given generation.
func (s *EncryptionService) Encrypt(plaintext []byte, v Version) (Ciphertext, error) {
	if !s.Derived() {
		return nil, ErrKeyNotDerived
	}
	switch v {
	case V1:
		return s.encryptV1(plaintext)
	case V2:
		return s.encryptV2(plaintext)
	default:
		return nil, fmt.Errorf("unknown ciphertext version %d", v)
	}
}

// Decrypt authenticates and decrypts a raw record, dispatching on its version tag.
func (s *EncryptionService) Decrypt(data []byte) ([]byte, Version, error) {
	if !s.Derived() {
		return nil, 0, ErrKeyNotDerived
	}
	ct, err := ParseCiphertext(data)
	if err != nil {
		return nil, 0, err
	}
	switch c := ct.(type) {
	case *CiphertextV2:
		pt, err := s.decryptV2(c)
		return pt, V2, err
	case *CiphertextV1:
		pt, err := s.decryptV1(c)
		return pt, V1, err
	default:
		return nil, 0, fmt.Errorf("unknown ciphertext type %T", ct)
	}
}

func (s *EncryptionService) encryptV1(plaintext []byte) (*CiphertextV1, error) {
	c := &CiphertextV1{}
	if _, err := rand.Read(c.IV[:]); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	block, err := aes.NewCipher(s.keyV1[:16])
	if err != nil {
		return nil, err
	}
	c.Body = make([]byte, len(plaintext))
	cipher.NewCTR(block, c.IV[:]).XORKeyStream(c.Body, plaintext)
	copy(c.Tag[:], s.macV1(c.IV[:], c.Body))
	return c, nil
}

func (s *EncryptionService) decryptV1(c *CiphertextV1) ([]byte, error) {
	if !hmac.Equal(c.Tag[:], s.macV1(c.IV[:], c.Body)) {
		return nil, fmt.Errorf("%w: v1 authentication tag", ErrDecryptionMismatch)
	}
	block, err := aes.NewCipher(s.keyV1[:16])
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(c.Body))
	cipher.NewCTR(block, c.IV[:]).XORKeyStream(pt, c.Body)
	return pt, nil
}

// macV1 is HMAC-SHA256 keyed by key[16:31] over IV||ciphertext, truncated to 16 bytes.
func (s *EncryptionService) macV1(iv, body []byte) []byte {
	mac := hmac.New(sha256.New, s.keyV1[16:v1KeySize])
	mac.Write(iv)
	mac.Write(body)
	return mac.Sum(nil)[:v1TagSize]
}

func (s *EncryptionService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.keyV2)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *EncryptionService) encryptV2(plaintext []byte) (*CiphertextV2, error) {
	aead, err := s.gcm()
	if err != nil {
		return nil, err
	}
	c := &CiphertextV2{}
	if _, err := rand.Read(c.IV[:]); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	// Seal appends the tag; the record stores it ahead of the body.
	sealed := aead.Seal(nil, c.IV[:], plaintext, nil)
	n := len(sealed) - v2TagSize
	c.Body = sealed[:n]
	copy(c.Tag[:], sealed[n:])
	return c, nil
}

func (s *EncryptionService) decryptV2(c *CiphertextV2) ([]byte, error) {
	aead, err := s.gcm()
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(c.Body)+v2TagSize)
	sealed = append(sealed, c.Body...)
	sealed = append(sealed, c.Tag[:]...)
	pt, err := aead.Open(nil, c.IV[:], sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: v2 authentication tag", ErrDecryptionMismatch)
	}
	return pt, nil
}

// EncryptUtxo serializes and encrypts a UTXO under its own generation.
func (s *EncryptionService) EncryptUtxo(u *Utxo) ([]byte, error) {
	ct, err := s.Encrypt(u.MarshalPlaintext(), u.Version())
	if err != nil {
		return nil, err
	}
	return ct.Bytes(), nil
}

// DecryptUtxo decrypts a record and rebuilds the UTXO owned by the
// keypair of the record's generation.
func (s *EncryptionService) DecryptUtxo(data []byte) (*Utxo, error) {
	pt, v, err := s.Decrypt(data)
	if err != nil {
		return nil, err
	}
	kp, err := s.Keypair(v)
	if err != nil {
		return nil, err
	}
	u, err := ParsePlaintext(pt, kp)
	if err != nil {
		return nil, err
	}
	u.version = v
	return u, nil
}
