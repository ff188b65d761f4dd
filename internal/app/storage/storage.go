// Package storage defines the persistence contracts shared by the memory and
// Postgres implementations, the pagination envelope, and the sentinel errors
// the services translate into domain errors.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/shopspring/decimal"
)

// Sentinel errors. Implementations map their native failures onto these; the
// services translate them into the ServiceError taxonomy.
var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate")
	ErrConflict  = errors.New("storage: conflict")
)

// UserStore persists platform users.
type UserStore interface {
	CreateUser(ctx context.Context, u identity.User) (identity.User, error)
	UpdateUser(ctx context.Context, u identity.User) (identity.User, error)
	GetUser(ctx context.Context, id string) (identity.User, error)
	GetUserByEmail(ctx context.Context, email string) (identity.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (identity.User, error)
}

// InvestorProfileStore persists investor profiles (1:1 with users).
type InvestorProfileStore interface {
	CreateProfile(ctx context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error)
	UpdateProfile(ctx context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error)
	GetProfile(ctx context.Context, id string) (identity.InvestorProfile, error)
	GetProfileByUser(ctx context.Context, userID string) (identity.InvestorProfile, error)
}

// BankStore persists banks.
type BankStore interface {
	CreateBank(ctx context.Context, b identity.Bank) (identity.Bank, error)
	GetBank(ctx context.Context, id string) (identity.Bank, error)
	GetBankByCode(ctx context.Context, code string) (identity.Bank, error)
	ListBanks(ctx context.Context) ([]identity.Bank, error)
}

// AssetStore persists assets.
type AssetStore interface {
	CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	GetAsset(ctx context.Context, id string) (asset.Asset, error)
	// GetAssetForUpdate row-locks the asset inside a unit of work.
	GetAssetForUpdate(ctx context.Context, id string) (asset.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
	ListAssets(ctx context.Context, f asset.Filter, page Page, sort Sort) (Paged[asset.Asset], error)
	CountAssets(ctx context.Context, f asset.Filter) (int64, error)
}

// DocumentStore persists asset documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d asset.Document) (asset.Document, error)
	GetDocument(ctx context.Context, id string) (asset.Document, error)
	ListDocuments(ctx context.Context, assetID string) ([]asset.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteDocumentsByAsset(ctx context.Context, assetID string) error
}

// TransactionStore persists purchase transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx trade.Transaction) (trade.Transaction, error)
	UpdateTransaction(ctx context.Context, tx trade.Transaction) (trade.Transaction, error)
	GetTransaction(ctx context.Context, id string) (trade.Transaction, error)
	// GetTransactionForUpdate row-locks the transaction inside a unit of work.
	GetTransactionForUpdate(ctx context.Context, id string) (trade.Transaction, error)
	ListTransactions(ctx context.Context, f trade.Filter, page Page, sort Sort) (Paged[trade.Transaction], error)
	CountTransactionsByStatus(ctx context.Context, f trade.Filter) (map[trade.Status]int64, error)
	// TransactionStats sums amount and token amount over the filter; counts
	// cover all matches, sums cover COMPLETED matches only.
	TransactionStats(ctx context.Context, f trade.Filter) (trade.Stats, error)
	// AssetSaleStats returns completed-transaction count and distinct buyer
	// count for an asset.
	AssetSaleStats(ctx context.Context, assetID string) (completed int64, investors int64, err error)
	// ListStuckTransactions returns transactions in the given statuses whose
	// last update is older than the cutoff.
	ListStuckTransactions(ctx context.Context, statuses []trade.Status, before time.Time) ([]trade.Transaction, error)
}

// HoldingStore persists portfolio holdings.
type HoldingStore interface {
	// UpsertHolding adds the deltas to the (profile, asset) row, creating it
	// if absent, and returns the resulting holding.
	UpsertHolding(ctx context.Context, investorProfileID, assetID string, tokenDelta int64, costDelta decimal.Decimal) (trade.Holding, error)
	GetHolding(ctx context.Context, investorProfileID, assetID string) (trade.Holding, error)
	ListHoldingsByProfile(ctx context.Context, investorProfileID string) ([]trade.Holding, error)
	// SumHoldings returns the total token amount held against an asset.
	SumHoldings(ctx context.Context, assetID string) (int64, error)
}

// AuctionStore persists auctions.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error)
	UpdateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error)
	GetAuction(ctx context.Context, id string) (auction.Auction, error)
	// GetAuctionForUpdate row-locks the auction inside a unit of work.
	GetAuctionForUpdate(ctx context.Context, id string) (auction.Auction, error)
	ListAuctions(ctx context.Context, f auction.Filter, page Page, sort Sort) (Paged[auction.Auction], error)
	// OverlappingAuctionExists reports whether a SCHEDULED or ACTIVE auction
	// on the asset intersects [start, end].
	OverlappingAuctionExists(ctx context.Context, assetID string, start, end time.Time) (bool, error)
	// ActivateDue flips SCHEDULED auctions whose start time has passed to
	// ACTIVE and returns them. Idempotent.
	ActivateDue(ctx context.Context, now time.Time) ([]auction.Auction, error)
	// EndDue flips ACTIVE auctions whose end time has passed to ENDED and
	// returns them. Idempotent.
	EndDue(ctx context.Context, now time.Time) ([]auction.Auction, error)
}

// BidStore persists bids.
type BidStore interface {
	CreateBid(ctx context.Context, b auction.Bid) (auction.Bid, error)
	UpdateBid(ctx context.Context, b auction.Bid) (auction.Bid, error)
	GetBid(ctx context.Context, id string) (auction.Bid, error)
	DeleteBid(ctx context.Context, id string) error
	// GetWinningBid returns the auction's winning bid or ErrNotFound.
	GetWinningBid(ctx context.Context, auctionID string) (auction.Bid, error)
	ListBidsByAuction(ctx context.Context, auctionID string) ([]auction.Bid, error)
	ListBidHistory(ctx context.Context, auctionID string, page Page) (Paged[auction.Bid], error)
}

// Store is the union persistence contract plus the unit-of-work primitive.
type Store interface {
	UserStore
	InvestorProfileStore
	BankStore
	AssetStore
	DocumentStore
	TransactionStore
	HoldingStore
	AuctionStore
	BidStore

	// Atomic runs fn against a transactional view of the store. Mutations made
	// through the handle commit together or not at all. Nested calls reuse the
	// enclosing unit.
	Atomic(ctx context.Context, fn func(Store) error) error
}
