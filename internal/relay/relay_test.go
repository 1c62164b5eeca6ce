package relay_test

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"privacycash/internal/relay"
	"privacycash/internal/relay/relaytest"
	"privacycash/internal/shielded"
)

func TestTreeOracle(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New()
	defer srv.Close()
	c := srv.Client()

	t.Run("empty tree", func(t *testing.T) {
		st, err := c.QueryTreeState(ctx, shielded.SOL)
		require.NoError(t, err)
		empty, err := shielded.EmptyRoot()
		require.NoError(t, err)
		require.Equal(t, empty, st.Root)
		require.Zero(t, st.NextIndex)
	})

	t.Run("paths fold to the served root", func(t *testing.T) {
		for i := int64(1); i <= 5; i++ {
			srv.AddLeaf(shielded.SOL, big.NewInt(i*1000), []byte{byte(i)})
		}
		st, err := c.QueryTreeState(ctx, shielded.SOL)
		require.NoError(t, err)
		require.EqualValues(t, 5, st.NextIndex)

		for i := int64(1); i <= 5; i++ {
			p, err := c.FetchMerkleProof(ctx, big.NewInt(i*1000), shielded.SOL)
			require.NoError(t, err)
			root, err := p.ComputeRoot(big.NewInt(i*1000), uint64(i-1))
			require.NoError(t, err)
			require.Equal(t, st.Root, root)
		}
	})

	t.Run("token trees are separate", func(t *testing.T) {
		st, err := c.QueryTreeState(ctx, shielded.USDC)
		require.NoError(t, err)
		require.Zero(t, st.NextIndex)
	})

	t.Run("unknown commitment", func(t *testing.T) {
		_, err := c.FetchMerkleProof(ctx, big.NewInt(424242), shielded.SOL)
		require.ErrorIs(t, err, relay.ErrRemoteProtocol)
		var pe *relay.ProtocolError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, http.StatusNotFound, pe.Status)
		require.Equal(t, "commitment not found", pe.Message)
	})
}

func TestMissingFields(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/merkle/root":
			w.Write([]byte(`{"root":"1"}`))
		case "/utxos/range":
			w.Write([]byte(`{"encrypted_outputs":[]}`))
		case "/config":
			w.Write([]byte(`{"deposit_fee_rate":"0"}`))
		case "/deposit":
			w.Write([]byte(`{"success":true}`))
		default:
			w.Write([]byte(`{}`))
		}
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()
	c, err := relay.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.QueryTreeState(ctx, shielded.SOL)
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)

	_, err = c.FetchLedgerPage(ctx, 0, 10, shielded.SOL)
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)

	_, err = c.FeeConfig(ctx)
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)

	_, err = c.OutputExists(ctx, []byte{1}, shielded.SOL)
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)

	_, err = c.SubmitDeposit(ctx, &relay.DepositRequest{SignedTransaction: "x"})
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)

	_, err = c.LookupIndices(ctx, [][]byte{{1}})
	require.ErrorIs(t, err, relay.ErrRemoteProtocol)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New()
	defer srv.Close()
	c := srv.Client()

	t.Run("empty page terminates", func(t *testing.T) {
		page, err := c.FetchLedgerPage(ctx, 0, 20000, shielded.SOL)
		require.NoError(t, err)
		require.Empty(t, page.EncryptedOutputs)
		require.False(t, page.HasMore)
	})

	for i := 0; i < 7; i++ {
		srv.AddOutput(shielded.SOL, []byte{0xaa, byte(i)})
	}

	t.Run("paging", func(t *testing.T) {
		page, err := c.FetchLedgerPage(ctx, 0, 4, shielded.SOL)
		require.NoError(t, err)
		require.Len(t, page.EncryptedOutputs, 4)
		require.True(t, page.HasMore)
		require.EqualValues(t, 7, page.Total)

		page, err = c.FetchLedgerPage(ctx, 4, 8, shielded.SOL)
		require.NoError(t, err)
		require.Len(t, page.EncryptedOutputs, 3)
		require.False(t, page.HasMore)
		require.Equal(t, []byte{0xaa, 6}, page.EncryptedOutputs[2])
	})

	t.Run("index lookup", func(t *testing.T) {
		idx, err := c.LookupIndices(ctx, [][]byte{{0xaa, 5}, {0xaa, 1}})
		require.NoError(t, err)
		require.Equal(t, []uint64{5, 1}, idx)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := c.OutputExists(ctx, []byte{0xaa, 3}, shielded.SOL)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.OutputExists(ctx, []byte{0xbb}, shielded.SOL)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestFeeConfig(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New()
	defer srv.Close()
	srv.SetConfig("withdraw_fee_rate", "0.0035")
	srv.SetConfig("rent_fees", map[string]uint64{"sol": 2_000_000, "usdc": 500})
	srv.SetConfig("minimum_withdrawal", map[string]uint64{"sol": 10_000_000})
	c := srv.Client()

	t.Run("cached after first fetch", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]*relay.FeeConfig, 8)
		errs := make([]error, len(results))
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = c.FeeConfig(ctx)
			}(i)
		}
		wg.Wait()
		for i, r := range results {
			require.NoError(t, errs[i])
			require.True(t, r.WithdrawFeeRate.Equal(decimal.RequireFromString("0.0035")))
		}
		first := srv.Hits("/config")
		_, err := c.FeeConfig(ctx)
		require.NoError(t, err)
		require.Equal(t, first, srv.Hits("/config"))
	})

	t.Run("withdraw fee is floor(A*r) + rent", func(t *testing.T) {
		cfg, err := c.FeeConfig(ctx)
		require.NoError(t, err)
		fee, err := cfg.WithdrawFee(shielded.SOL, 1_000_000_000)
		require.NoError(t, err)
		require.EqualValues(t, 3_500_000+2_000_000, fee)

		fee, err = cfg.WithdrawFee(shielded.USDC, 999)
		require.NoError(t, err)
		require.EqualValues(t, 3+500, fee)

		_, err = cfg.WithdrawFee(shielded.USDT, 1000)
		require.ErrorIs(t, err, shielded.ErrUnsupportedAsset)

		require.EqualValues(t, 10_000_000, cfg.Minimum(shielded.SOL))
		require.Zero(t, cfg.Minimum(shielded.USDC))
	})

	t.Run("deposit rate defaults to zero", func(t *testing.T) {
		srv2 := relaytest.New()
		defer srv2.Close()
		srv2.SetConfig("deposit_fee_rate", nil)
		cfg, err := srv2.Client().FeeConfig(ctx)
		require.NoError(t, err)
		require.Zero(t, cfg.DepositFee(1_000_000_000))
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	srv := relaytest.New()
	defer srv.Close()
	c := srv.Client()

	res, err := c.SubmitDeposit(ctx, &relay.DepositRequest{SignedTransaction: "AQID", SenderAddress: "sender"})
	require.NoError(t, err)
	require.Equal(t, "deposit-sig-1", res.Signature)
	require.Len(t, srv.Deposits(), 1)
	require.Equal(t, 1, srv.Hits("/deposit"))

	_, err = c.SubmitSplDeposit(ctx, &relay.DepositRequest{SignedTransaction: "AQID", MintAddress: shielded.USDC.Mint})
	require.NoError(t, err)
	require.Equal(t, 1, srv.Hits("/deposit/spl"))

	params := &relay.WithdrawParams{ExtAmount: -400, Fee: 35, EncryptedOutput1: []byte{1, 2}, EncryptedOutput2: []byte{3}}
	res, err = c.SubmitWithdraw(ctx, params)
	require.NoError(t, err)
	require.Equal(t, "withdraw-sig-1", res.Signature)
	got := srv.Withdrawals()
	require.Len(t, got, 1)
	require.EqualValues(t, -400, got[0].ExtAmount)
	require.Equal(t, []byte{1, 2}, got[0].EncryptedOutput1)

	srv.Fail("/withdraw", http.StatusBadRequest, "root mismatch")
	_, err = c.SubmitWithdraw(ctx, params)
	var pe *relay.ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "root mismatch", pe.Message)
	require.Equal(t, http.StatusBadRequest, pe.Status)
}
