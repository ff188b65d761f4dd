package memory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAsset(t *testing.T, s *Store) asset.Asset {
	t.Helper()
	ctx := context.Background()
	bank, err := s.CreateBank(ctx, identity.Bank{Name: "First Bank", Code: "FB"})
	require.NoError(t, err)
	a, err := s.CreateAsset(ctx, asset.Asset{
		BankID: bank.ID, Name: "Prop-1", AssetType: asset.TypeRealEstate,
		TotalValue: decimal.NewFromInt(1_000_000), TotalSupply: 10_000,
		PricePerToken: decimal.NewFromInt(100),
		TokenizationStatus: asset.StatusDraft, ListingStatus: asset.ListingUnlisted,
	})
	require.NoError(t, err)
	return a
}

func TestUserUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateUser(ctx, identity.User{Email: "a@example.com", WalletAddress: "w1"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, identity.User{Email: "A@Example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = s.CreateUser(ctx, identity.User{WalletAddress: "w1"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// Empty email and wallet never collide with each other.
	_, err = s.CreateUser(ctx, identity.User{Email: "b@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, identity.User{Email: "c@example.com"})
	require.NoError(t, err)
}

func TestGetUserByWallet(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, identity.User{Email: "a@example.com", WalletAddress: "w1"})
	require.NoError(t, err)

	got, err := s.GetUserByWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByWallet(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertHoldingAccumulates(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAsset(t, s)

	h, err := s.UpsertHolding(ctx, "p1", a.ID, 100, decimal.NewFromInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(100), h.TokenAmount)

	h, err = s.UpsertHolding(ctx, "p1", a.ID, 50, decimal.NewFromInt(5_000))
	require.NoError(t, err)
	assert.Equal(t, int64(150), h.TokenAmount)
	assert.True(t, h.CostBasis.Equal(decimal.NewFromInt(15_000)))

	sum, err := s.SumHoldings(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), sum)
}

func TestAtomicRollsBackAllMutations(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAsset(t, s)
	boom := stderrors.New("boom")

	err := s.Atomic(ctx, func(tx storage.Store) error {
		if _, err := tx.UpsertHolding(ctx, "p1", a.ID, 100, decimal.NewFromInt(10_000)); err != nil {
			return err
		}
		locked, err := tx.GetAssetForUpdate(ctx, a.ID)
		if err != nil {
			return err
		}
		locked.ListingStatus = asset.ListingSoldOut
		if _, err := tx.UpdateAsset(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetHolding(ctx, "p1", a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.ListingUnlisted, got.ListingStatus)
}

func TestListAssetsFilterAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	bank, err := s.CreateBank(ctx, identity.Bank{Name: "First Bank", Code: "FB"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		status := asset.ListingUnlisted
		if i%2 == 0 {
			status = asset.ListingListed
		}
		_, err := s.CreateAsset(ctx, asset.Asset{
			BankID: bank.ID, Name: "Asset", AssetType: asset.TypeRealEstate,
			TotalValue: decimal.NewFromInt(int64(100_000 * (i + 1))), TotalSupply: 1_000,
			PricePerToken: decimal.NewFromInt(100),
			TokenizationStatus: asset.StatusDraft, ListingStatus: status,
		})
		require.NoError(t, err)
	}

	paged, err := s.ListAssets(ctx, asset.Filter{ListingStatus: asset.ListingListed},
		storage.Page{Number: 1, Size: 2}, storage.Sort{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	assert.Len(t, paged.Data, 2)
	assert.Equal(t, 2, paged.TotalPages)
}

func TestActivateAndEndDue(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAsset(t, s)
	now := time.Now().UTC()

	scheduled, err := s.CreateAuction(ctx, auction.Auction{
		AssetID: a.ID, ReservePrice: decimal.NewFromInt(50_000), TokenAmount: 100,
		StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
		Status: auction.StatusScheduled,
	})
	require.NoError(t, err)
	future, err := s.CreateAuction(ctx, auction.Auction{
		AssetID: a.ID, ReservePrice: decimal.NewFromInt(50_000), TokenAmount: 100,
		StartTime: now.Add(2 * time.Hour), EndTime: now.Add(3 * time.Hour),
		Status: auction.StatusScheduled,
	})
	require.NoError(t, err)

	activated, err := s.ActivateDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, activated, 1)
	assert.Equal(t, scheduled.ID, activated[0].ID)

	got, err := s.GetAuction(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusScheduled, got.Status)

	ended, err := s.EndDue(ctx, now.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, scheduled.ID, ended[0].ID)
}

func TestWinningBidTracking(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAsset(t, s)
	now := time.Now().UTC()

	auc, err := s.CreateAuction(ctx, auction.Auction{
		AssetID: a.ID, ReservePrice: decimal.NewFromInt(50_000), TokenAmount: 100,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
		Status: auction.StatusActive,
	})
	require.NoError(t, err)

	_, err = s.GetWinningBid(ctx, auc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	b1, err := s.CreateBid(ctx, auction.Bid{AuctionID: auc.ID, Bidder: "w1", Amount: decimal.NewFromInt(50_000), IsWinning: true})
	require.NoError(t, err)

	winning, err := s.GetWinningBid(ctx, auc.ID)
	require.NoError(t, err)
	assert.Equal(t, b1.ID, winning.ID)

	require.NoError(t, s.DeleteBid(ctx, b1.ID))
	_, err = s.GetBid(ctx, b1.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
