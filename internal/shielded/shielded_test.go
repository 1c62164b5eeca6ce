package shielded

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSignature() []byte {
	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = byte(i*7 + 3)
	}
	return sig
}

func testService(t *testing.T) *EncryptionService {
	t.Helper()
	s, err := DeriveKeys(testSignature())
	require.NoError(t, err)
	return s
}

func TestPoseidonVector(t *testing.T) {
	h, err := Poseidon(big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, "7853200120776062878684798364095072458815029376092732009249414926327459813530", h.String())
}

func TestPublicAmount(t *testing.T) {
	t.Run("deposit", func(t *testing.T) {
		require.Equal(t, big.NewInt(1000), PublicAmount(1000, 0))
	})
	t.Run("withdraw wraps around the field", func(t *testing.T) {
		got := PublicAmount(-400, 35)
		want := new(big.Int).Sub(FieldSize(), big.NewInt(435))
		require.Equal(t, want, got)
	})
	t.Run("always in range", func(t *testing.T) {
		for _, ext := range []int64{-1 << 62, -1, 0, 1, 1 << 62} {
			got := PublicAmount(ext, 1<<40)
			require.GreaterOrEqual(t, got.Sign(), 0)
			require.Equal(t, -1, got.Cmp(FieldSize()))
		}
	})
}

func TestKeyDerivation(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := testService(t)
		b := testService(t)
		for _, v := range []Version{V1, V2} {
			ka, err := a.Keypair(v)
			require.NoError(t, err)
			kb, err := b.Keypair(v)
			require.NoError(t, err)
			require.Equal(t, ka.PrivKey, kb.PrivKey)
			require.Equal(t, ka.PubKey, kb.PubKey)
		}
	})

	t.Run("generations are independent", func(t *testing.T) {
		s := testService(t)
		k1, _ := s.Keypair(V1)
		k2, _ := s.Keypair(V2)
		require.NotEqual(t, k1.PrivKey, k2.PrivKey)
		require.NotEqual(t, s.keyV1, s.keyV2[:v1KeySize])
	})

	t.Run("private keys are reduced", func(t *testing.T) {
		s := testService(t)
		for _, v := range []Version{V1, V2} {
			k, _ := s.Keypair(v)
			require.Equal(t, -1, k.PrivKey.Cmp(FieldSize()))
			pk, err := Poseidon(k.PrivKey)
			require.NoError(t, err)
			require.Equal(t, pk, k.PubKey)
		}
	})

	t.Run("short signature", func(t *testing.T) {
		_, err := DeriveKeys(make([]byte, 10))
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("not derived", func(t *testing.T) {
		var s EncryptionService
		_, err := s.Keypair(V2)
		require.ErrorIs(t, err, ErrKeyNotDerived)
		_, err = s.Encrypt([]byte("x"), V2)
		require.ErrorIs(t, err, ErrKeyNotDerived)
		_, _, err = s.Decrypt([]byte("x"))
		require.ErrorIs(t, err, ErrKeyNotDerived)
	})
}

func TestEncryption(t *testing.T) {
	s := testService(t)
	plaintext := []byte("1000|12345|7|" + NativeMint)

	for _, v := range []Version{V1, V2} {
		t.Run(v.String()+" round trip", func(t *testing.T) {
			ct, err := s.Encrypt(plaintext, v)
			require.NoError(t, err)
			require.Equal(t, v, ct.Version())

			pt, got, err := s.Decrypt(ct.Bytes())
			require.NoError(t, err)
			require.Equal(t, v, got)
			require.Equal(t, plaintext, pt)
		})

		t.Run(v.String()+" single bit flip is rejected", func(t *testing.T) {
			ct, err := s.Encrypt(plaintext, v)
			require.NoError(t, err)
			raw := ct.Bytes()
			// Skip the version tag so the flip lands on authenticated bytes.
			start := 0
			if v == V2 {
				start = len(v2Tag)
			}
			for i := start; i < len(raw); i++ {
				tampered := bytes.Clone(raw)
				tampered[i] ^= 0x01
				_, _, err := s.Decrypt(tampered)
				require.ErrorIs(t, err, ErrDecryptionMismatch, "byte %d", i)
			}
		})
	}

	t.Run("v2 layout", func(t *testing.T) {
		ct, err := s.Encrypt(plaintext, V2)
		require.NoError(t, err)
		raw := ct.Bytes()
		require.Equal(t, v2Tag[:], raw[:8])
		require.Len(t, raw, 8+12+16+len(plaintext))

		parsed, err := ParseCiphertext(raw)
		require.NoError(t, err)
		require.IsType(t, &CiphertextV2{}, parsed)
	})

	t.Run("v1 layout", func(t *testing.T) {
		ct, err := s.Encrypt(plaintext, V1)
		require.NoError(t, err)
		require.Len(t, ct.Bytes(), 16+16+len(plaintext))
	})

	t.Run("foreign key is a mismatch", func(t *testing.T) {
		other := testSignature()
		other[0] ^= 0xff
		foreign, err := DeriveKeys(other)
		require.NoError(t, err)
		for _, v := range []Version{V1, V2} {
			ct, err := s.Encrypt(plaintext, v)
			require.NoError(t, err)
			_, _, err = foreign.Decrypt(ct.Bytes())
			require.ErrorIs(t, err, ErrDecryptionMismatch)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		_, _, err := s.Decrypt([]byte{1, 2, 3})
		require.ErrorIs(t, err, ErrDecryptionMismatch)
	})
}

func TestUtxo(t *testing.T) {
	s := testService(t)
	kp, err := s.Keypair(V2)
	require.NoError(t, err)

	t.Run("commitment is pure", func(t *testing.T) {
		u, err := NewUtxo(big.NewInt(1000), kp, NativeMint)
		require.NoError(t, err)
		c1, err := u.Commitment()
		require.NoError(t, err)

		mf, err := MintField(NativeMint)
		require.NoError(t, err)
		want, err := Poseidon(big.NewInt(1000), kp.PubKey, u.Blinding(), mf)
		require.NoError(t, err)
		require.Equal(t, want, c1)

		u.SetBlinding(big.NewInt(42))
		c2, err := u.Commitment()
		require.NoError(t, err)
		require.NotEqual(t, c1, c2)
	})

	t.Run("nullifier requires an index", func(t *testing.T) {
		u, err := NewUtxo(big.NewInt(5), kp, NativeMint)
		require.NoError(t, err)
		_, err = u.Nullifier()
		require.ErrorIs(t, err, ErrMissingIndex)

		z, err := NewZeroUtxo(kp, NativeMint)
		require.NoError(t, err)
		_, err = z.Nullifier()
		require.NoError(t, err)
	})

	t.Run("nullifier depends on index and commitment", func(t *testing.T) {
		u, err := NewUtxo(big.NewInt(5), kp, NativeMint)
		require.NoError(t, err)
		u.SetIndex(3)
		n1, err := u.Nullifier()
		require.NoError(t, err)
		again, err := u.Nullifier()
		require.NoError(t, err)
		require.Equal(t, n1, again)

		u.SetIndex(4)
		n2, err := u.Nullifier()
		require.NoError(t, err)
		require.NotEqual(t, n1, n2)

		u.SetBlinding(big.NewInt(9))
		n3, err := u.Nullifier()
		require.NoError(t, err)
		require.NotEqual(t, n2, n3)
	})

	t.Run("spl mint field", func(t *testing.T) {
		// USDC mint
		mf, err := MintField("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
		require.NoError(t, err)
		require.LessOrEqual(t, mf.BitLen(), 31*8)

		_, err = MintField("not-base58-0OIl")
		require.Error(t, err)
	})

	t.Run("encrypt decrypt preserves the utxo", func(t *testing.T) {
		for _, v := range []Version{V1, V2} {
			owner, err := s.Keypair(v)
			require.NoError(t, err)
			u, err := NewUtxo(big.NewInt(777), owner, NativeMint)
			require.NoError(t, err)
			u.SetIndex(11)
			u.SetVersion(v)

			raw, err := s.EncryptUtxo(u)
			require.NoError(t, err)
			got, err := s.DecryptUtxo(raw)
			require.NoError(t, err)

			require.Equal(t, v, got.Version())
			require.Equal(t, u.Amount(), got.Amount())
			require.Equal(t, u.Blinding(), got.Blinding())
			idx, ok := got.Index()
			require.True(t, ok)
			require.EqualValues(t, 11, idx)

			want, _ := u.Commitment()
			have, _ := got.Commitment()
			require.Equal(t, want, have)
		}
	})

	t.Run("malformed plaintext", func(t *testing.T) {
		for _, pt := range []string{"", "1|2|3", "a|2|3|m", "1|2|-1|m", "1|2|3|"} {
			_, err := ParsePlaintext([]byte(pt), kp)
			require.ErrorIs(t, err, ErrInvalidPlaintext, pt)
		}
	})
}

func TestZeroTree(t *testing.T) {
	z, err := Zeros()
	require.NoError(t, err)
	require.Len(t, z, TreeDepth+1)
	require.Equal(t, 0, z[0].Sign())
	for i := 1; i <= TreeDepth; i++ {
		h, err := Poseidon(z[i-1], z[i-1])
		require.NoError(t, err)
		require.Equal(t, h, z[i])
	}

	t.Run("zero path folds to the empty root", func(t *testing.T) {
		p, err := ZeroPath()
		require.NoError(t, err)
		root, err := p.ComputeRoot(big.NewInt(0), 0)
		require.NoError(t, err)
		empty, err := EmptyRoot()
		require.NoError(t, err)
		require.Equal(t, empty, root)
	})

	t.Run("index bits", func(t *testing.T) {
		bits := IndexBits(5)
		require.Len(t, bits, TreeDepth)
		require.Equal(t, []uint8{1, 0, 1, 0}, bits[:4])
	})
}
