package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/assets"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/auctions"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/investors"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/trading"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/memory"
	"github.com/Clearfield-Labs/asset_layer/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler http.Handler
	store   *memory.Store
	mock    *collab.Mock
	admin   identity.User
	banker  identity.User
	bank    identity.Bank
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	set, mock := collab.NewMockSet()

	admin, err := store.CreateUser(ctx, identity.User{
		Email: "admin@example.com", Role: identity.RolePlatformAdmin,
		KYCStatus: identity.KYCVerified, IsActive: true,
	})
	require.NoError(t, err)
	banker, err := store.CreateUser(ctx, identity.User{
		Email: "banker@example.com", Role: identity.RoleBankAdmin,
		KYCStatus: identity.KYCVerified, IsActive: true,
	})
	require.NoError(t, err)
	bank, err := store.CreateBank(ctx, identity.Bank{Name: "First Bank", Code: "FB"})
	require.NoError(t, err)

	cfg := config.Default()
	hub := auctions.NewHub()
	server := NewServer(Options{
		Assets:  assets.New(store, set.Tokenization, nil),
		Trading: trading.NewEngine(store, set.Escrow, set.Payment, set.Transfer, nil),
		Auctions: auctions.NewEngine(store, set.Escrow, set.Payment, set.Transfer, hub, auctions.Config{
			BidIncrementPct: cfg.Auction.BidIncrementPct,
			MinDuration:     time.Duration(cfg.Auction.MinDurationSeconds) * time.Second,
			MaxDuration:     time.Duration(cfg.Auction.MaxDurationSeconds) * time.Second,
		}, nil),
		Investors: investors.New(store, set.KYC, nil),
		Store:     store,
	})

	return &testAPI{
		handler: server.Router(cfg),
		store:   store,
		mock:    mock,
		admin:   admin,
		banker:  banker,
		bank:    bank,
	}
}

func (a *testAPI) do(t *testing.T, method, path, actingUser string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actingUser != "" {
		req.Header.Set("X-User-ID", actingUser)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, "body: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateUserIsExemptFromActingUser(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{
		"email": "new@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decodeData[identity.User](t, rec)
	assert.Equal(t, identity.RoleInvestor, u.Role)
}

func TestMutationRequiresActingUser(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/banks", "", map[string]string{
		"name": "Second Bank", "code": "SB",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/banks", "nonexistent", map[string]string{
		"name": "Second Bank", "code": "SB",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAssetCreationEnforcesRole(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	investor, err := api.store.CreateUser(ctx, identity.User{
		Email: "inv@example.com", Role: identity.RoleInvestor,
		KYCStatus: identity.KYCVerified, IsActive: true,
	})
	require.NoError(t, err)

	body := map[string]any{
		"bankId": api.bank.ID, "name": "Prop-1", "assetType": "REAL_ESTATE",
		"totalValue": "1000000", "totalSupply": 10000,
	}
	rec := api.do(t, http.MethodPost, "/api/v1/assets", investor.ID, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/assets", api.banker.ID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeData[asset.Asset](t, rec)
	assert.Equal(t, asset.StatusDraft, a.TokenizationStatus)
	assert.True(t, a.PricePerToken.Equal(decimal.NewFromInt(100)))
}

func TestErrorEnvelopeShape(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/v1/assets/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "ASSET_NOT_FOUND", env.Code)
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.NotEmpty(t, env.Error)
}

func TestMarketplaceBrowseShowsOnlyListed(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	_, err := api.store.CreateAsset(ctx, asset.Asset{
		BankID: api.bank.ID, Name: "Listed", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(1_000_000), TotalSupply: 10_000,
		PricePerToken: decimal.NewFromInt(100),
		TokenizationStatus: asset.StatusTokenized, ListingStatus: asset.ListingListed,
	})
	require.NoError(t, err)
	_, err = api.store.CreateAsset(ctx, asset.Asset{
		BankID: api.bank.ID, Name: "Draft", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(500_000), TotalSupply: 5_000,
		PricePerToken: decimal.NewFromInt(100),
		TokenizationStatus: asset.StatusDraft, ListingStatus: asset.ListingUnlisted,
	})
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/api/v1/marketplace/assets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data struct {
			Data  []asset.Asset `json:"data"`
			Total int64         `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data.Data, 1)
	assert.Equal(t, "Listed", env.Data.Data[0].Name)
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	a, err := api.store.CreateAsset(ctx, asset.Asset{
		BankID: api.bank.ID, Name: "Prop-1", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(1_000_000), TotalSupply: 10_000,
		PricePerToken: decimal.NewFromInt(100), MintAddress: "mint-1",
		TokenizationStatus: asset.StatusTokenized, ListingStatus: asset.ListingListed,
	})
	require.NoError(t, err)
	buyer, err := api.store.CreateUser(ctx, identity.User{
		Email: "buyer@example.com", WalletAddress: "wallet-buyer",
		Role: identity.RoleInvestor, KYCStatus: identity.KYCVerified, IsActive: true,
	})
	require.NoError(t, err)
	_, err = api.store.CreateProfile(ctx, identity.InvestorProfile{
		UserID: buyer.ID, FirstName: "Ada", LastName: "Investor",
		Country: "US", InvestorType: "RETAIL",
	})
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/v1/transactions", buyer.ID, map[string]any{
		"buyerId": buyer.ID, "assetId": a.ID, "tokenAmount": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tx struct {
		ID string `json:"id"`
	}
	txBody := decodeData[json.RawMessage](t, rec)
	require.NoError(t, json.Unmarshal(txBody, &tx))

	steps := []struct {
		path string
		body any
	}{
		{"create-escrow", nil},
		{"confirm-payment", map[string]string{"paymentSignature": "sig1"}},
		{"transfer-tokens", nil},
		{"complete", nil},
	}
	for _, step := range steps {
		rec := api.do(t, http.MethodPost,
			fmt.Sprintf("/api/v1/transactions/%s/%s", tx.ID, step.path), buyer.ID, step.body)
		require.Equal(t, http.StatusOK, rec.Code, "step %s: %s", step.path, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/users/"+buyer.ID+"/portfolio", buyer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The audit trail recorded the state-changing calls.
	rec = api.do(t, http.MethodGet, "/api/v1/audit", buyer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeData[[]AuditEntry](t, rec)
	assert.NotEmpty(t, entries)
	assert.Equal(t, "transaction.complete", entries[0].Action)
}

func TestBidOverHTTPUsesActingUserWallet(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	a, err := api.store.CreateAsset(ctx, asset.Asset{
		BankID: api.bank.ID, Name: "Prop-1", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(1_000_000), TotalSupply: 10_000,
		PricePerToken: decimal.NewFromInt(100), MintAddress: "mint-1",
		TokenizationStatus: asset.StatusTokenized, ListingStatus: asset.ListingListed,
	})
	require.NoError(t, err)
	bidder, err := api.store.CreateUser(ctx, identity.User{
		Email: "bidder@example.com", WalletAddress: "wallet-bidder",
		Role: identity.RoleInvestor, KYCStatus: identity.KYCVerified, IsActive: true,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	auc, err := api.store.CreateAuction(ctx, auctionFixture(a.ID, now))
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/v1/auctions/"+auc.ID+"/bid", bidder.ID, map[string]any{
		"amount": "60000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got, err := api.store.GetAuction(ctx, auc.ID)
	require.NoError(t, err)
	assert.Equal(t, "wallet-bidder", got.CurrentBidder)
}
