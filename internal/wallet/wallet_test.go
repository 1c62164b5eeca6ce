package wallet_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"privacycash/internal/chain"
	"privacycash/internal/chain/chaintest"
	"privacycash/internal/relay"
	"privacycash/internal/relay/relaytest"
	"privacycash/internal/shielded"
	"privacycash/internal/wallet"
)

var programID = solana.MustPublicKeyFromBase58("9fhQBbumKEFuXtMBDw8AaQyAjCorLGJQiS3skWZdQyQD")

type fixture struct {
	srv    *relaytest.Server
	reader *chaintest.Reader
	svc    *shielded.EncryptionService
	rec    *wallet.Reconstructor
	next   uint64
}

func newFixture(t *testing.T, seed byte) *fixture {
	t.Helper()
	srv := relaytest.New()
	t.Cleanup(srv.Close)
	reader := chaintest.New()
	return &fixture{
		srv:    srv,
		reader: reader,
		svc:    deriveKeys(t, seed),
		rec:    wallet.NewReconstructor(srv.Client(), chain.NewSpentChecker(programID, reader)),
	}
}

func deriveKeys(t *testing.T, seed byte) *shielded.EncryptionService {
	t.Helper()
	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = seed + byte(i)
	}
	svc, err := shielded.DeriveKeys(sig)
	require.NoError(t, err)
	return svc
}

// add appends a UTXO owned by svc whose plaintext claims index claimed.
func (f *fixture) add(t *testing.T, svc *shielded.EncryptionService, amount int64, v shielded.Version, claimed uint64) *shielded.Utxo {
	t.Helper()
	kp, err := svc.Keypair(v)
	require.NoError(t, err)
	u, err := shielded.NewUtxo(big.NewInt(amount), kp, shielded.NativeMint)
	require.NoError(t, err)
	u.SetVersion(v)
	u.SetIndex(claimed)
	out, err := svc.EncryptUtxo(u)
	require.NoError(t, err)
	cm, err := u.Commitment()
	require.NoError(t, err)
	require.Equal(t, f.next, f.srv.AddLeaf(shielded.SOL, cm, out))
	f.next++
	return u
}

func (f *fixture) addOwned(t *testing.T, amount int64, v shielded.Version) *shielded.Utxo {
	return f.add(t, f.svc, amount, v, f.next)
}

func (f *fixture) markSpent(t *testing.T, u *shielded.Utxo) {
	t.Helper()
	nf, err := u.Nullifier()
	require.NoError(t, err)
	pdas, err := chain.NullifierAccounts(programID, nf)
	require.NoError(t, err)
	f.reader.AddAccount(pdas[0])
}

func amounts(notes []*wallet.Note) []int64 {
	out := make([]int64, len(notes))
	for i, n := range notes {
		out[i] = n.Utxo.Amount().Int64()
	}
	return out
}

func TestUnspentEmptyLedger(t *testing.T) {
	f := newFixture(t, 1)
	notes, err := f.rec.Unspent(context.Background(), f.svc, shielded.SOL)
	require.NoError(t, err)
	require.Empty(t, notes)
	require.Equal(t, 1, f.srv.Hits("/utxos/range"))
	require.Zero(t, f.srv.Hits("/utxos/indices"))
	require.Empty(t, f.reader.Queries())
}

func TestUnspentScansBothGenerations(t *testing.T) {
	f := newFixture(t, 1)
	other := deriveKeys(t, 77)

	f.addOwned(t, 300, shielded.V1)
	f.add(t, other, 900, shielded.V2, f.next)
	f.addOwned(t, 0, shielded.V2)
	f.srv.AddOutput(shielded.SOL, []byte("short"))
	f.next++
	f.addOwned(t, 500, shielded.V2)

	notes, err := f.rec.WithPageSize(2).Unspent(context.Background(), f.svc, shielded.SOL)
	require.NoError(t, err)
	require.Equal(t, []int64{500, 300}, amounts(notes))
	require.Equal(t, shielded.V2, notes[0].Utxo.Version())
	require.Equal(t, shielded.V1, notes[1].Utxo.Version())
	require.Equal(t, 3, f.srv.Hits("/utxos/range"))
	require.Equal(t, big.NewInt(800), wallet.Balance(notes))

	// Each owned UTXO is recognised by its own generation's keypair.
	kp1, err := f.svc.Keypair(shielded.V1)
	require.NoError(t, err)
	require.Equal(t, kp1.PubKey, notes[1].Utxo.Keypair().PubKey)
}

func TestUnspentDropsSpent(t *testing.T) {
	f := newFixture(t, 2)
	spent := f.addOwned(t, 700, shielded.V2)
	f.addOwned(t, 200, shielded.V2)
	f.markSpent(t, spent)

	for i := 0; i < 2; i++ {
		notes, err := f.rec.Unspent(context.Background(), f.svc, shielded.SOL)
		require.NoError(t, err)
		require.Equal(t, []int64{200}, amounts(notes))
	}
}

func TestUnspentCorrectsIndex(t *testing.T) {
	f := newFixture(t, 3)
	f.addOwned(t, 10, shielded.V2)
	// Claims index 40 but lands at position 1.
	stale := f.add(t, f.svc, 20, shielded.V2, 40)
	// Claims index 41 but lands at position 2, and is spent there.
	moved := f.add(t, f.svc, 30, shielded.V2, 41)
	moved.SetIndex(2)
	f.markSpent(t, moved)

	notes, err := f.rec.Unspent(context.Background(), f.svc, shielded.SOL)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 10}, amounts(notes))

	idx, ok := notes[0].Utxo.Index()
	require.True(t, ok)
	require.EqualValues(t, 1, idx)
	cm, err := stale.Commitment()
	require.NoError(t, err)
	got, err := notes[0].Utxo.Commitment()
	require.NoError(t, err)
	require.Equal(t, cm, got)

	// One spent check for the candidates and one for the corrected pair.
	require.Len(t, f.reader.Queries(), 2)
}

func TestUnspentRequiresKeys(t *testing.T) {
	f := newFixture(t, 4)
	_, err := f.rec.Unspent(context.Background(), &shielded.EncryptionService{}, shielded.SOL)
	require.ErrorIs(t, err, shielded.ErrKeyNotDerived)
}

func TestLargest(t *testing.T) {
	f := newFixture(t, 5)
	var notes []*wallet.Note
	for _, a := range []int64{5, 50, 20, 40} {
		notes = append(notes, &wallet.Note{Utxo: f.addOwned(t, a, shielded.V2)})
	}
	require.Equal(t, []int64{50, 40}, amounts(wallet.Largest(notes, 2)))
	require.Equal(t, []int64{5, 50, 20, 40}, amounts(notes))
	require.Len(t, wallet.Largest(notes[:1], 2), 1)
}

// endlessLedger serves empty pages that always claim more.
type endlessLedger struct{ pages int }

func (l *endlessLedger) FetchLedgerPage(context.Context, uint64, uint64, shielded.Asset) (*relay.LedgerPage, error) {
	l.pages++
	return &relay.LedgerPage{HasMore: true}, nil
}

func (l *endlessLedger) LookupIndices(context.Context, [][]byte) ([]uint64, error) {
	return nil, nil
}

func TestUnspentStopsOnEmptyPageWithMore(t *testing.T) {
	ledger := &endlessLedger{}
	rec := wallet.NewReconstructor(ledger, chain.NewSpentChecker(programID, chaintest.New()))
	_, err := rec.Unspent(context.Background(), deriveKeys(t, 6), shielded.SOL)
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)
	require.Equal(t, 1, ledger.pages)
}
