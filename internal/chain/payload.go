// payload.go - Instruction data of the transact instructions.

package chain

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"

	"privacycash/internal/prover"
)

var (
	transactDiscriminator    = anchorDiscriminator("transact")
	transactSplDiscriminator = anchorDiscriminator("transact_spl")
)

// anchorDiscriminator is sha256("global:<name>")[:8].
func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// EncodeTransact serializes the proof, its public signals and ExtData
// amounts and outputs as transact (native) or transact_spl instruction data.
func EncodeTransact(proof *prover.EncodedProof, ext *ExtData, spl bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	d := transactDiscriminator
	if spl {
		d = transactSplDiscriminator
	}
	if err := enc.WriteBytes(d[:], false); err != nil {
		return nil, err
	}

	// Step 1: proof points
	for _, b := range [][]byte{proof.A[:], proof.B[:], proof.C[:]} {
		if err := enc.WriteBytes(b, false); err != nil {
			return nil, errors.Wrap(err, "write proof")
		}
	}

	// Step 2: root, publicAmount, extDataHash, nullifiers, commitments
	for i := range proof.Signals {
		if err := enc.WriteBytes(proof.Signals[i][:], false); err != nil {
			return nil, errors.Wrap(err, "write public signal")
		}
	}

	// Step 3: amounts and length-prefixed outputs
	if err := enc.WriteInt64(ext.ExtAmount, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(ext.Fee, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(ext.EncryptedOutput1, true); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(ext.EncryptedOutput2, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
