package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDeterministicIDs(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	offeringID, err := m.CreateOffering(ctx, OfferingParams{AssetID: "a1", Symbol: "P1"})
	require.NoError(t, err)
	assert.Equal(t, "offering-a1", offeringID)

	again, err := m.CreateOffering(ctx, OfferingParams{AssetID: "a1", Symbol: "P1"})
	require.NoError(t, err)
	assert.Equal(t, offeringID, again)

	deployment, err := m.DeployToken(ctx, offeringID)
	require.NoError(t, err)
	assert.Equal(t, "mint-offering-a1", deployment.MintAddress)

	address, err := m.Open(ctx, EscrowRequest{ReferenceID: "tx1", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "escrow-tx1", address)
}

func TestMockFailureInjectionIsOneShot(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailWith("DeployToken", boom)
	_, err := m.DeployToken(ctx, "o1")
	assert.ErrorIs(t, err, boom)

	_, err = m.DeployToken(ctx, "o1")
	assert.NoError(t, err)
}

func TestMockKYCOverrides(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	result, err := m.IsVerified(ctx, "wallet-1")
	require.NoError(t, err)
	assert.True(t, result.Verified)

	m.SetVerified("wallet-1", false)
	result, err = m.IsVerified(ctx, "wallet-1")
	require.NoError(t, err)
	assert.False(t, result.Verified)
}

func TestMockRecordsCalls(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	require.NoError(t, m.Refund(ctx, "bid1", "wallet-9"))
	require.NoError(t, m.Refund(ctx, "bid2", "wallet-8"))

	calls := m.Calls("EscrowRefund")
	require.Len(t, calls, 2)
	assert.Equal(t, "bid1", calls[0].Args["referenceId"])
}

func TestHTTPEscrowOpenSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotAPIKey = r.Header.Get("X-Api-Key")
		var req EscrowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tx1", req.ReferenceID)
		_ = json.NewEncoder(w).Encode(map[string]string{"escrowAddress": "esc-abc"})
	}))
	defer server.Close()

	escrow := NewHTTPEscrow(ClientConfig{Endpoint: server.URL, APIKey: "k1", Timeout: 5 * time.Second})
	address, err := escrow.Open(context.Background(), EscrowRequest{
		ReferenceID: "tx1",
		Buyer:       "b",
		Seller:      "s",
		Amount:      decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.Equal(t, "esc-abc", address)
	assert.Equal(t, "tx1", gotKey)
	assert.Equal(t, "k1", gotAPIKey)
}

func TestHTTPClientRetriesOn5xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"offeringId": "o1"})
	}))
	defer server.Close()

	tok := NewHTTPTokenization(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})
	offeringID, err := tok.CreateOffering(context.Background(), OfferingParams{AssetID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "o1", offeringID)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClientDoesNotRetryOn4xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	tok := NewHTTPTokenization(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})
	_, err := tok.CreateOffering(context.Background(), OfferingParams{AssetID: "a1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTransferCachesTokenInfo(t *testing.T) {
	var infoHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokens/info":
			infoHits.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]int64{"decimals": 6})
		case "/tokens/transfer":
			_ = json.NewEncoder(w).Encode(map[string]string{"signature": "sig-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	transfer := NewHTTPTransfer(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})
	for i := 0; i < 3; i++ {
		sig, err := transfer.Transfer(context.Background(), TransferRequest{
			ReferenceID: "tx1", Mint: "m1", From: "a", To: "b", Amount: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, "sig-1", sig)
	}
	assert.Equal(t, int32(1), infoHits.Load())
}
