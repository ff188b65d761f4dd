package investors

import (
	"context"
	"testing"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/memory"
	svcerrors "github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *memory.Store, *collab.Mock) {
	t.Helper()
	store := memory.New()
	mock := collab.NewMock()
	return New(store, mock, nil), store, mock
}

func TestCreateUserDefaultsAndUniqueness(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "Ada@Example.com", WalletAddress: "wallet-1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, identity.RoleInvestor, u.Role)
	assert.Equal(t, identity.KYCPending, u.KYCStatus)
	assert.True(t, u.IsActive)

	_, err = svc.CreateUser(ctx, CreateUserInput{Email: "ada@example.com"})
	require.Error(t, err)
	assert.Equal(t, "USER_EXISTS", svcerrors.GetServiceError(err).Code)

	_, err = svc.CreateUser(ctx, CreateUserInput{})
	require.Error(t, err)
}

func TestUpdateUserPartial(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.NoError(t, err)

	inactive := false
	role := identity.RoleBankAdmin
	updated, err := svc.UpdateUser(ctx, u.ID, UpdateUserInput{Role: &role, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, identity.RoleBankAdmin, updated.Role)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "a@example.com", updated.Email)

	_, err = svc.UpdateUser(ctx, "missing", UpdateUserInput{})
	assert.Equal(t, "USER_NOT_FOUND", svcerrors.GetServiceError(err).Code)
}

func TestUpsertProfile(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.NoError(t, err)

	p, err := svc.UpsertProfile(ctx, u.ID, ProfileInput{
		FirstName: "Ada", LastName: "Investor", Country: "US", InvestorType: "RETAIL",
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)

	// A second upsert replaces fields on the same profile.
	p2, err := svc.UpsertProfile(ctx, u.ID, ProfileInput{
		FirstName: "Ada", LastName: "Investor", Country: "GB", InvestorType: "ACCREDITED",
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, "GB", p2.Country)

	_, err = svc.UpsertProfile(ctx, u.ID, ProfileInput{FirstName: "Ada"})
	require.Error(t, err)
}

func TestSyncKYCVerifies(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com", WalletAddress: "wallet-1"})
	require.NoError(t, err)

	synced, err := svc.SyncKYC(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.KYCVerified, synced.KYCStatus)
}

func TestSyncKYCDemotesUnverified(t *testing.T) {
	svc, store, mock := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com", WalletAddress: "wallet-1"})
	require.NoError(t, err)
	u.KYCStatus = identity.KYCVerified
	_, err = store.UpdateUser(ctx, u)
	require.NoError(t, err)

	mock.SetVerified("wallet-1", false)
	synced, err := svc.SyncKYC(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.KYCExpired, synced.KYCStatus)
}

func TestSyncKYCRequiresWallet(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.SyncKYC(ctx, u.ID)
	require.Error(t, err)
	assert.Equal(t, "NO_WALLET", svcerrors.GetServiceError(err).Code)
}

func TestBanks(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	b, err := svc.CreateBank(ctx, CreateBankInput{Name: "First Bank", Code: "fb"})
	require.NoError(t, err)
	assert.Equal(t, "FB", b.Code)

	_, err = svc.CreateBank(ctx, CreateBankInput{Name: "Other", Code: "FB"})
	require.Error(t, err)
	assert.Equal(t, "BANK_EXISTS", svcerrors.GetServiceError(err).Code)

	got, err := svc.GetBank(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)

	banks, err := svc.ListBanks(ctx)
	require.NoError(t, err)
	assert.Len(t, banks, 1)
}

func TestPortfolioAggregates(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com", WalletAddress: "wallet-1"})
	require.NoError(t, err)
	p, err := svc.UpsertProfile(ctx, u.ID, ProfileInput{
		FirstName: "Ada", LastName: "Investor", Country: "US", InvestorType: "RETAIL",
	})
	require.NoError(t, err)

	bank, err := store.CreateBank(ctx, identity.Bank{Name: "First Bank", Code: "FB"})
	require.NoError(t, err)
	a1, err := store.CreateAsset(ctx, asset.Asset{
		BankID: bank.ID, Name: "Prop-1", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(1_000_000), TotalSupply: 10_000,
		PricePerToken: decimal.NewFromInt(100),
		TokenizationStatus: asset.StatusTokenized, ListingStatus: asset.ListingListed,
	})
	require.NoError(t, err)
	a2, err := store.CreateAsset(ctx, asset.Asset{
		BankID: bank.ID, Name: "Bond-1", AssetType: asset.TypeBond,
		TotalValue: decimal.NewFromInt(500_000), TotalSupply: 5_000,
		PricePerToken: decimal.NewFromInt(100),
		TokenizationStatus: asset.StatusTokenized, ListingStatus: asset.ListingListed,
	})
	require.NoError(t, err)

	_, err = store.UpsertHolding(ctx, p.ID, a1.ID, 100, decimal.NewFromInt(9_000))
	require.NoError(t, err)
	_, err = store.UpsertHolding(ctx, p.ID, a2.ID, 50, decimal.NewFromInt(5_000))
	require.NoError(t, err)

	portfolio, err := svc.GetPortfolio(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, portfolio.Positions, 2)
	assert.Equal(t, int64(150), portfolio.TotalTokens)
	assert.True(t, portfolio.TotalCost.Equal(decimal.NewFromInt(14_000)))
	assert.True(t, portfolio.CurrentValue.Equal(decimal.NewFromInt(15_000)))
}

func TestPortfolioRequiresProfile(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.GetPortfolio(ctx, u.ID)
	require.Error(t, err)
	assert.Equal(t, "PROFILE_NOT_FOUND", svcerrors.GetServiceError(err).Code)
}
