// pda.go - Program-derived addresses of the pool program.

package chain

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"privacycash/internal/shielded"
)

var (
	seedNullifier0   = []byte("nullifier0")
	seedNullifier1   = []byte("nullifier1")
	seedMerkleTree   = []byte("merkle_tree")
	seedTreeToken    = []byte("tree_token")
	seedGlobalConfig = []byte("global_config")
)

// TransactAccounts are the program accounts touched by one transaction.
// Nullifier2 and Nullifier3 are the cross registrations: each input's
// nullifier under the other input's prefix.
type TransactAccounts struct {
	Nullifier0   solana.PublicKey
	Nullifier1   solana.PublicKey
	Nullifier2   solana.PublicKey
	Nullifier3   solana.PublicKey
	Tree         solana.PublicKey
	TreeToken    solana.PublicKey
	GlobalConfig solana.PublicKey
}

func findPDA(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "derive pda %q", seeds[0])
	}
	return pk, nil
}

// NullifierAccounts returns the two spent-marker accounts of one nullifier.
func NullifierAccounts(programID solana.PublicKey, nullifier *big.Int) ([2]solana.PublicKey, error) {
	n := shielded.FieldBytes(nullifier)
	a, err := findPDA(programID, seedNullifier0, n[:])
	if err != nil {
		return [2]solana.PublicKey{}, err
	}
	b, err := findPDA(programID, seedNullifier1, n[:])
	if err != nil {
		return [2]solana.PublicKey{}, err
	}
	return [2]solana.PublicKey{a, b}, nil
}

// TreeAccount returns the tree account of an asset.
func TreeAccount(programID solana.PublicKey, asset shielded.Asset) (solana.PublicKey, error) {
	if asset.IsNative() {
		return findPDA(programID, seedMerkleTree)
	}
	mint, err := MintKey(asset)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return findPDA(programID, seedMerkleTree, mint[:])
}

// DeriveTransactAccounts derives every PDA of a 2-input transaction.
func DeriveTransactAccounts(programID solana.PublicKey, asset shielded.Asset, nullifiers [2]*big.Int) (*TransactAccounts, error) {
	n0 := shielded.FieldBytes(nullifiers[0])
	n1 := shielded.FieldBytes(nullifiers[1])

	var (
		acc TransactAccounts
		err error
	)
	for _, d := range []struct {
		dst   *solana.PublicKey
		seeds [][]byte
	}{
		{&acc.Nullifier0, [][]byte{seedNullifier0, n0[:]}},
		{&acc.Nullifier1, [][]byte{seedNullifier1, n1[:]}},
		{&acc.Nullifier2, [][]byte{seedNullifier0, n1[:]}},
		{&acc.Nullifier3, [][]byte{seedNullifier1, n0[:]}},
		{&acc.TreeToken, [][]byte{seedTreeToken}},
		{&acc.GlobalConfig, [][]byte{seedGlobalConfig}},
	} {
		if *d.dst, err = findPDA(programID, d.seeds...); err != nil {
			return nil, err
		}
	}
	if acc.Tree, err = TreeAccount(programID, asset); err != nil {
		return nil, err
	}
	return &acc, nil
}
