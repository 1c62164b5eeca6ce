// Package shielded implements the value model of the shielded pool.
//
// Overview:
//   - UTXOs are commitments Poseidon(amount, pubkey, blinding, mint) appended to a
//     remote Merkle tree of depth 26 over the BN254 scalar field
//   - Spending a UTXO publishes its nullifier Poseidon(commitment, index, signature),
//     where signature = Poseidon(privkey, commitment, index)
//   - Spending keys and symmetric keys are derived from a client signature over a
//     fixed sign-in message; the signing key itself never reaches this package
//   - Two generations of output encryption (v1 AES-CTR+HMAC, v2 AES-GCM) coexist and
//     both stay decryptable forever
//
// Security Model:
//   - Hashes are circomlib-compatible Poseidon (go-iden3-crypto)
//   - Field arithmetic uses the BN254 scalar field modulus (gnark-crypto)
//   - Blinding factors come from crypto/rand through fr.Element.SetRandom
//   - Authentication failures abort decryption; no partially authenticated
//     plaintext is ever returned
//
// Usage:
//   - DeriveKeys(signature) to obtain an EncryptionService
//   - NewUtxo / NewZeroUtxo to build outputs, Commitment and Nullifier to bind them
//   - EncryptUtxo / DecryptUtxo to move UTXOs through the encrypted-output log
package shielded
