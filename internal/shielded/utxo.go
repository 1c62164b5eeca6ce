// utxo.go - UTXO type, commitments and nullifiers.
//
// A Utxo is an amount of one asset owned by a shielded keypair. Its commitment
// is a leaf of the remote tree; its nullifier marks it spent.

package shielded

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// NativeMint is the sentinel mint address of native SOL.
const NativeMint = "11111111111111111111111111111112"

// Utxo is one shielded output. Fields change only through setters so the
// memoized commitment is dropped whenever an input to it changes.
type Utxo struct {
	amount   *big.Int
	blinding *big.Int
	keypair  *Keypair
	mint     string
	version  Version

	index    uint64
	hasIndex bool

	commitment *big.Int
}

// NewUtxo creates a fresh v2 output with a random blinding and no tree index.
func NewUtxo(amount *big.Int, kp *Keypair, mint string) (*Utxo, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative utxo amount %s", amount)
	}
	blinding, err := RandomFieldElement()
	if err != nil {
		return nil, err
	}
	return &Utxo{
		amount:   new(big.Int).Set(amount),
		blinding: blinding,
		keypair:  kp,
		mint:     mint,
		version:  V2,
	}, nil
}

// NewZeroUtxo creates a placeholder input of amount 0 at index 0.
func NewZeroUtxo(kp *Keypair, mint string) (*Utxo, error) {
	u, err := NewUtxo(new(big.Int), kp, mint)
	if err != nil {
		return nil, err
	}
	u.SetIndex(0)
	return u, nil
}

func (u *Utxo) Amount() *big.Int   { return new(big.Int).Set(u.amount) }
func (u *Utxo) Blinding() *big.Int { return new(big.Int).Set(u.blinding) }
func (u *Utxo) Keypair() *Keypair  { return u.keypair }
func (u *Utxo) Mint() string       { return u.mint }
func (u *Utxo) Version() Version   { return u.version }

// Index returns the tree position and whether one has been assigned.
func (u *Utxo) Index() (uint64, bool) { return u.index, u.hasIndex }

// IsZero reports a zero-amount UTXO.
func (u *Utxo) IsZero() bool { return u.amount.Sign() == 0 }

// SetIndex records the tree position. The index takes part in the
// nullifier and the plaintext, not in the commitment.
func (u *Utxo) SetIndex(i uint64) {
	u.index = i
	u.hasIndex = true
}

// SetBlinding replaces the blinding factor.
func (u *Utxo) SetBlinding(b *big.Int) {
	u.blinding = Reduce(b)
	u.commitment = nil
}

// SetVersion selects the encryption generation used by EncryptUtxo.
func (u *Utxo) SetVersion(v Version) { u.version = v }

// Commitment returns Poseidon(amount, pubkey, blinding, mintField).
func (u *Utxo) Commitment() (*big.Int, error) {
	if u.commitment != nil {
		return new(big.Int).Set(u.commitment), nil
	}
	if u.keypair == nil {
		return nil, fmt.Errorf("utxo has no owner keypair")
	}
	mf, err := MintField(u.mint)
	if err != nil {
		return nil, err
	}
	cm, err := Poseidon(u.amount, u.keypair.PubKey, u.blinding, mf)
	if err != nil {
		return nil, fmt.Errorf("commitment: %w", err)
	}
	u.commitment = cm
	return new(big.Int).Set(cm), nil
}

// Nullifier returns Poseidon(commitment, index, Sign(privkey, commitment, index)).
func (u *Utxo) Nullifier() (*big.Int, error) {
	if !u.hasIndex {
		return nil, ErrMissingIndex
	}
	cm, err := u.Commitment()
	if err != nil {
		return nil, err
	}
	idx := new(big.Int).SetUint64(u.index)
	sig, err := u.keypair.Sign(cm, idx)
	if err != nil {
		return nil, fmt.Errorf("nullifier signature: %w", err)
	}
	n, err := Poseidon(cm, idx, sig)
	if err != nil {
		return nil, fmt.Errorf("nullifier: %w", err)
	}
	return n, nil
}

// MintField maps a mint address to its in-circuit field element.
func MintField(mint string) (*big.Int, error) {
	if mint == NativeMint {
		v, ok := new(big.Int).SetString(NativeMint, 10)
		if !ok {
			return nil, fmt.Errorf("parse native mint sentinel")
		}
		return v, nil
	}
	raw, err := base58.Decode(mint)
	if err != nil {
		return nil, fmt.Errorf("decode mint %q: %w", mint, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("mint %q: expected 32 bytes, got %d", mint, len(raw))
	}
	return new(big.Int).SetBytes(raw[:31]), nil
}

// MarshalPlaintext serializes the UTXO as "amount|blinding|index|mint".
func (u *Utxo) MarshalPlaintext() []byte {
	return []byte(strings.Join([]string{
		u.amount.String(),
		u.blinding.String(),
		strconv.FormatUint(u.index, 10),
		u.mint,
	}, "|"))
}

// ParsePlaintext rebuilds a UTXO owned by kp from its serialized form.
func ParsePlaintext(pt []byte, kp *Keypair) (*Utxo, error) {
	parts := strings.Split(string(pt), "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %d fields", ErrInvalidPlaintext, len(parts))
	}
	amount, ok := new(big.Int).SetString(parts[0], 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidPlaintext, parts[0])
	}
	blinding, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return nil, fmt.Errorf("%w: blinding %q", ErrInvalidPlaintext, parts[1])
	}
	index, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: index %q", ErrInvalidPlaintext, parts[2])
	}
	if parts[3] == "" {
		return nil, fmt.Errorf("%w: empty mint", ErrInvalidPlaintext)
	}
	u := &Utxo{
		amount:   amount,
		blinding: Reduce(blinding),
		keypair:  kp,
		mint:     parts[3],
		version:  V2,
	}
	u.SetIndex(index)
	return u, nil
}
