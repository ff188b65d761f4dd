// Package auctions implements time-boxed competitive sales: bidding with
// escrowed funds, displacement refunds, settlement into holdings, and the
// clock that activates and ends auctions.
package auctions

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config parameterizes the auction engine.
type Config struct {
	BidIncrementPct float64
	MinDuration     time.Duration
	MaxDuration     time.Duration
}

// Engine orchestrates auctions against the store, the escrow/payment/transfer
// collaborators and the event hub.
type Engine struct {
	store    storage.Store
	escrow   collab.Escrow
	payment  collab.Payment
	transfer collab.TokenTransfer
	events   *Hub
	log      *logger.Logger

	// increment is 1 + bidIncrementPct as an exact decimal; floats never
	// touch a bid comparison.
	increment   decimal.Decimal
	minDuration time.Duration
	maxDuration time.Duration
}

// NewEngine creates the auction engine.
func NewEngine(store storage.Store, escrow collab.Escrow, payment collab.Payment, transfer collab.TokenTransfer, events *Hub, cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("auctions")
	}
	if events == nil {
		events = NewHub()
	}
	return &Engine{
		store:       store,
		escrow:      escrow,
		payment:     payment,
		transfer:    transfer,
		events:      events,
		log:         log,
		increment:   decimal.NewFromInt(1).Add(decimal.NewFromFloat(cfg.BidIncrementPct)),
		minDuration: cfg.MinDuration,
		maxDuration: cfg.MaxDuration,
	}
}

// Events returns the engine's event hub.
func (e *Engine) Events() *Hub {
	return e.events
}

// CreateInput schedules an auction over a fixed token amount of one asset.
type CreateInput struct {
	AssetID      string          `json:"assetId"`
	ReservePrice decimal.Decimal `json:"reservePrice"`
	TokenAmount  int64           `json:"tokenAmount"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      time.Time       `json:"endTime"`
}

// Create validates the schedule and inserts the auction. The token amount
// does not reserve supply; settlement re-checks conservation.
func (e *Engine) Create(ctx context.Context, in CreateInput) (auction.Auction, error) {
	if !in.ReservePrice.IsPositive() {
		return auction.Auction{}, errors.InvalidInput("", "reservePrice must be positive")
	}
	if in.TokenAmount <= 0 {
		return auction.Auction{}, errors.InvalidInput("", "tokenAmount must be positive")
	}

	a, err := e.store.GetAsset(ctx, in.AssetID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return auction.Auction{}, errors.NotFound("ASSET_NOT_FOUND", "Asset not found")
		}
		return auction.Auction{}, errors.Internal("load asset", err)
	}
	if a.TokenizationStatus != asset.StatusTokenized {
		return auction.Auction{}, errors.InvalidStatus("NOT_TOKENIZED", "Only tokenized assets can be auctioned")
	}

	now := time.Now().UTC()
	if in.StartTime.Before(now) {
		return auction.Auction{}, errors.InvalidInput("INVALID_START_TIME", "startTime must not be in the past")
	}
	if !in.EndTime.After(in.StartTime) {
		return auction.Auction{}, errors.InvalidInput("INVALID_END_TIME", "endTime must be after startTime")
	}
	duration := in.EndTime.Sub(in.StartTime)
	if duration < e.minDuration || duration > e.maxDuration {
		return auction.Auction{}, errors.InvalidInput("INVALID_END_TIME",
			fmt.Sprintf("auction duration must be between %s and %s", e.minDuration, e.maxDuration))
	}

	overlapping, err := e.store.OverlappingAuctionExists(ctx, in.AssetID, in.StartTime, in.EndTime)
	if err != nil {
		return auction.Auction{}, errors.Internal("check overlap", err)
	}
	if overlapping {
		return auction.Auction{}, errors.Conflict("OVERLAPPING_AUCTION", "An auction already covers this window")
	}

	status := auction.StatusScheduled
	if !in.StartTime.After(now) {
		status = auction.StatusActive
	}

	created, err := e.store.CreateAuction(ctx, auction.Auction{
		AssetID:      in.AssetID,
		ReservePrice: in.ReservePrice,
		TokenAmount:  in.TokenAmount,
		StartTime:    in.StartTime.UTC(),
		EndTime:      in.EndTime.UTC(),
		Status:       status,
	})
	if err != nil {
		return auction.Auction{}, errors.Internal("create auction", err)
	}

	metrics.RecordAuctionTransition(string(status))
	e.log.WithFields(map[string]any{"auctionId": created.ID, "assetId": in.AssetID}).Info("auction created")
	return created, nil
}

// MinimumBid returns the smallest acceptable bid for the auction's current
// state: reserve price with no bids, otherwise the current bid raised by the
// configured increment. The boundary is inclusive.
func (e *Engine) MinimumBid(a auction.Auction) decimal.Decimal {
	if !a.HasBid() {
		return a.ReservePrice
	}
	return a.CurrentBid.Mul(e.increment)
}

// PlaceBid escrows the bid amount, then displaces the previous winner and
// records the new bid in one unit of work. The displaced bidder is refunded
// after the unit commits; if the unit fails after escrow, the escrowed
// amount is compensated with a refund.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderWallet string, amount decimal.Decimal) (auction.Bid, error) {
	bidder, err := e.store.GetUserByWallet(ctx, bidderWallet)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return auction.Bid{}, errors.NotFound("BIDDER_NOT_FOUND", "No user owns this wallet")
		}
		return auction.Bid{}, errors.Internal("load bidder", err)
	}
	if bidder.KYCStatus != identity.KYCVerified {
		return auction.Bid{}, errors.KYCRequired("")
	}

	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return auction.Bid{}, err
	}
	now := time.Now().UTC()
	if a.Status != auction.StatusActive || now.Before(a.StartTime) || now.After(a.EndTime) {
		metrics.RecordBid("rejected")
		return auction.Bid{}, errors.InvalidStatus("AUCTION_NOT_ACTIVE", "Auction is not accepting bids")
	}
	if minimum := e.MinimumBid(a); amount.LessThan(minimum) {
		metrics.RecordBid("rejected")
		return auction.Bid{}, errors.InvalidStatus("BID_TOO_LOW",
			fmt.Sprintf("Bid must be at least %s", minimum)).
			WithDetails("minimumBid", minimum.String())
	}

	// The bid ID is fixed before escrow so the escrow call is idempotent on
	// retry and the refund key is known even if the unit of work fails.
	bidID := uuid.NewString()
	start := time.Now()
	_, err = e.escrow.Open(ctx, collab.EscrowRequest{
		ReferenceID: bidID,
		Buyer:       bidderWallet,
		Amount:      amount,
		ExpiresAt:   a.EndTime.Add(24 * time.Hour),
	})
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	if err != nil {
		metrics.RecordBid("rejected")
		return auction.Bid{}, errors.CollaboratorFailure("escrow", err)
	}

	var (
		placed    auction.Bid
		displaced *auction.Bid
	)
	err = e.store.Atomic(ctx, func(s storage.Store) error {
		locked, err := s.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if locked.Status != auction.StatusActive {
			return errors.InvalidStatus("AUCTION_NOT_ACTIVE", "Auction is not accepting bids")
		}
		if minimum := e.MinimumBid(locked); amount.LessThan(minimum) {
			return errors.InvalidStatus("BID_TOO_LOW",
				fmt.Sprintf("Bid must be at least %s", minimum)).
				WithDetails("minimumBid", minimum.String())
		}

		if previous, err := s.GetWinningBid(ctx, auctionID); err == nil {
			previous.IsWinning = false
			if _, err := s.UpdateBid(ctx, previous); err != nil {
				return err
			}
			displaced = &previous
		} else if !stderrors.Is(err, storage.ErrNotFound) {
			return err
		}

		placed, err = s.CreateBid(ctx, auction.Bid{
			ID:        bidID,
			AuctionID: auctionID,
			Bidder:    bidderWallet,
			Amount:    amount,
			IsWinning: true,
		})
		if err != nil {
			return err
		}

		locked.CurrentBid = amount
		locked.CurrentBidder = bidderWallet
		_, err = s.UpdateAuction(ctx, locked)
		return err
	})
	if err != nil {
		e.refundBid(ctx, bidID, bidderWallet)
		metrics.RecordBid("rejected")
		return auction.Bid{}, errors.GetServiceError(err)
	}

	if displaced != nil {
		e.refundBid(ctx, displaced.ID, displaced.Bidder)
		e.events.Publish(Event{Type: EventBidDisplaced, AuctionID: auctionID, Payload: displaced})
	}
	e.events.Publish(Event{Type: EventBidPlaced, AuctionID: auctionID, Payload: placed})

	metrics.RecordBid("accepted")
	e.log.WithFields(map[string]any{
		"auctionId": auctionID,
		"bidId":     placed.ID,
		"amount":    amount.String(),
	}).Info("bid placed")
	return placed, nil
}

// refundBid issues a best-effort escrow refund for one bid.
func (e *Engine) refundBid(ctx context.Context, bidID, recipient string) {
	start := time.Now()
	err := e.escrow.Refund(ctx, bidID, recipient)
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	if err != nil {
		e.log.WithError(err).WithField("bidId", bidID).Warn("bid refund failed")
	}
}

// CancelBid withdraws a non-winning bid while the auction is still active.
func (e *Engine) CancelBid(ctx context.Context, bidID, bidderWallet string) error {
	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("BID_NOT_FOUND", "Bid not found")
		}
		return errors.Internal("load bid", err)
	}
	if bid.Bidder != bidderWallet {
		return errors.Forbidden("Bid belongs to another wallet")
	}

	a, err := e.getAuction(ctx, bid.AuctionID)
	if err != nil {
		return err
	}
	if a.Status != auction.StatusActive {
		return errors.InvalidStatus("", "Bids can only be cancelled while the auction is active")
	}
	if bid.IsWinning {
		return errors.InvalidStatus("CANNOT_CANCEL_WINNING", "The winning bid cannot be cancelled")
	}

	if err := e.store.DeleteBid(ctx, bidID); err != nil {
		return errors.Internal("delete bid", err)
	}
	e.refundBid(ctx, bidID, bidderWallet)
	metrics.RecordBid("cancelled")
	return nil
}

var errSupplyExhausted = stderrors.New("supply exhausted at settlement")

// Settle closes an ended auction. Without a bid meeting the reserve the
// auction is cancelled and every bidder refunded. Otherwise the winner's
// settlement transaction, holding credit and the SETTLED flip commit in one
// unit of work; token transfer, escrow release and loser refunds happen
// around it. Replay on a SETTLED auction is a no-op.
func (e *Engine) Settle(ctx context.Context, auctionID string) (auction.Auction, error) {
	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return auction.Auction{}, err
	}
	if a.Status == auction.StatusSettled {
		return a, nil
	}
	now := time.Now().UTC()
	switch a.Status {
	case auction.StatusEnded:
	case auction.StatusActive:
		if now.Before(a.EndTime) {
			return auction.Auction{}, errors.InvalidStatus("AUCTION_NOT_ENDED", "Auction has not ended")
		}
	default:
		return auction.Auction{}, errors.InvalidStatus("AUCTION_NOT_ENDED", "Auction cannot be settled from "+string(a.Status))
	}

	winning, err := e.store.GetWinningBid(ctx, auctionID)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && winning.Amount.LessThan(a.ReservePrice)) {
		return e.cancelUnmet(ctx, a)
	}
	if err != nil {
		return auction.Auction{}, errors.Internal("load winning bid", err)
	}

	winner, err := e.store.GetUserByWallet(ctx, winning.Bidder)
	if err != nil {
		return auction.Auction{}, errors.Internal("load winner", err)
	}
	profile, err := e.store.GetProfileByUser(ctx, winner.ID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return auction.Auction{}, errors.InvalidStatus("NO_PROFILE", "Winner has no investor profile")
		}
		return auction.Auction{}, errors.Internal("load winner profile", err)
	}

	tokenized, err := e.store.GetAsset(ctx, a.AssetID)
	if err != nil {
		return auction.Auction{}, errors.Internal("load asset", err)
	}

	// On-chain transfer first, keyed by the auction ID so a replay after a
	// mid-settlement crash reuses the same transfer.
	start := time.Now()
	signature, err := e.transfer.Transfer(ctx, collab.TransferRequest{
		ReferenceID: a.ID,
		Mint:        tokenized.MintAddress,
		From:        tokenized.BankID,
		To:          winning.Bidder,
		Amount:      a.TokenAmount,
	})
	metrics.RecordCollaboratorCall("transfer", time.Since(start), err)
	if err != nil {
		metrics.RecordSettlement("failure")
		return auction.Auction{}, errors.CollaboratorFailure("transfer", err)
	}

	var settled auction.Auction
	err = e.store.Atomic(ctx, func(s storage.Store) error {
		locked, err := s.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if locked.Status == auction.StatusSettled {
			settled = locked
			return nil
		}

		lockedAsset, err := s.GetAssetForUpdate(ctx, locked.AssetID)
		if err != nil {
			return err
		}
		sold, err := s.SumHoldings(ctx, locked.AssetID)
		if err != nil {
			return err
		}
		if sold+locked.TokenAmount > lockedAsset.TotalSupply {
			return errSupplyExhausted
		}

		if _, err := s.CreateTransaction(ctx, trade.Transaction{
			AssetID:     locked.AssetID,
			BuyerID:     winner.ID,
			SellerID:    lockedAsset.BankID,
			Type:        trade.TypeAuctionSettlement,
			Amount:      winning.Amount,
			TokenAmount: locked.TokenAmount,
			TxSignature: signature,
			Status:      trade.StatusCompleted,
			CompletedAt: now,
		}); err != nil {
			return err
		}
		if _, err := s.UpsertHolding(ctx, profile.ID, locked.AssetID, locked.TokenAmount, winning.Amount); err != nil {
			return err
		}

		if sold+locked.TokenAmount == lockedAsset.TotalSupply {
			lockedAsset.ListingStatus = asset.ListingSoldOut
			if _, err := s.UpdateAsset(ctx, lockedAsset); err != nil {
				return err
			}
		}

		locked.Status = auction.StatusSettled
		locked.SettledAt = now
		settled, err = s.UpdateAuction(ctx, locked)
		return err
	})
	if stderrors.Is(err, errSupplyExhausted) {
		metrics.RecordSettlement("failure")
		return auction.Auction{}, errors.InvalidStatus("INSUFFICIENT_SUPPLY", "Supply exhausted before settlement")
	}
	if err != nil {
		metrics.RecordSettlement("failure")
		return auction.Auction{}, errors.GetServiceError(err)
	}

	// Release the winner's escrow to the seller and refund everyone else.
	start = time.Now()
	if err := e.escrow.Release(ctx, winning.ID); err != nil {
		e.log.WithError(err).WithField("bidId", winning.ID).Warn("escrow release failed")
	}
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	e.refundLosingBids(ctx, auctionID, winning.ID)

	e.events.Publish(Event{Type: EventAuctionSettled, AuctionID: auctionID, Payload: settled})
	metrics.RecordSettlement("settled")
	metrics.RecordAuctionTransition(string(auction.StatusSettled))
	e.log.WithFields(map[string]any{
		"auctionId": auctionID,
		"winner":    winning.Bidder,
		"amount":    winning.Amount.String(),
	}).Info("auction settled")
	return settled, nil
}

// cancelUnmet cancels an ended auction whose reserve was not met (or that
// received no bids) and refunds every bidder.
func (e *Engine) cancelUnmet(ctx context.Context, a auction.Auction) (auction.Auction, error) {
	a.Status = auction.StatusCancelled
	cancelled, err := e.store.UpdateAuction(ctx, a)
	if err != nil {
		return auction.Auction{}, errors.Internal("update auction", err)
	}

	e.refundLosingBids(ctx, a.ID, "")
	e.events.Publish(Event{Type: EventAuctionCancelled, AuctionID: a.ID, Payload: cancelled})
	metrics.RecordSettlement("reserve_unmet")
	metrics.RecordAuctionTransition(string(auction.StatusCancelled))
	e.log.WithField("auctionId", a.ID).Info("auction cancelled at settlement, reserve unmet")
	return cancelled, nil
}

// refundLosingBids refunds every bid except the one identified by keepBidID.
func (e *Engine) refundLosingBids(ctx context.Context, auctionID, keepBidID string) {
	bids, err := e.store.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		e.log.WithError(err).WithField("auctionId", auctionID).Warn("list bids for refund")
		return
	}
	for _, b := range bids {
		if b.ID == keepBidID {
			continue
		}
		e.refundBid(ctx, b.ID, b.Bidder)
	}
}

// Cancel aborts an auction before settlement and refunds all outstanding
// bids.
func (e *Engine) Cancel(ctx context.Context, auctionID string) (auction.Auction, error) {
	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return auction.Auction{}, err
	}
	if a.Status == auction.StatusSettled || a.Status == auction.StatusCancelled {
		return auction.Auction{}, errors.InvalidStatus("",
			fmt.Sprintf("Auction in %s cannot be cancelled", a.Status))
	}

	a.Status = auction.StatusCancelled
	cancelled, err := e.store.UpdateAuction(ctx, a)
	if err != nil {
		return auction.Auction{}, errors.Internal("update auction", err)
	}

	e.refundLosingBids(ctx, auctionID, "")
	e.events.Publish(Event{Type: EventAuctionCancelled, AuctionID: auctionID, Payload: cancelled})
	metrics.RecordAuctionTransition(string(auction.StatusCancelled))
	e.log.WithField("auctionId", auctionID).Info("auction cancelled")
	return cancelled, nil
}

// Extend pushes the end time of a not-yet-ended auction further out.
func (e *Engine) Extend(ctx context.Context, auctionID string, newEndTime time.Time) (auction.Auction, error) {
	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return auction.Auction{}, err
	}
	if a.Status != auction.StatusScheduled && a.Status != auction.StatusActive {
		return auction.Auction{}, errors.InvalidStatus("", "Only scheduled or active auctions can be extended")
	}
	if !newEndTime.After(a.EndTime) {
		return auction.Auction{}, errors.InvalidInput("INVALID_END_TIME", "newEndTime must be after the current end time")
	}

	a.EndTime = newEndTime.UTC()
	extended, err := e.store.UpdateAuction(ctx, a)
	if err != nil {
		return auction.Auction{}, errors.Internal("update auction", err)
	}

	e.events.Publish(Event{Type: EventAuctionExtended, AuctionID: auctionID, Payload: extended})
	e.log.WithFields(map[string]any{"auctionId": auctionID, "endTime": newEndTime}).Info("auction extended")
	return extended, nil
}

// Get returns one auction.
func (e *Engine) Get(ctx context.Context, auctionID string) (auction.Auction, error) {
	return e.getAuction(ctx, auctionID)
}

// List returns auctions matching the filter.
func (e *Engine) List(ctx context.Context, f auction.Filter, page storage.Page, sort storage.Sort) (storage.Paged[auction.Auction], error) {
	paged, err := e.store.ListAuctions(ctx, f, page, sort)
	if err != nil {
		return storage.Paged[auction.Auction]{}, errors.Internal("list auctions", err)
	}
	return paged, nil
}

// BidHistory returns an auction's bids, newest first.
func (e *Engine) BidHistory(ctx context.Context, auctionID string, page storage.Page) (storage.Paged[auction.Bid], error) {
	if _, err := e.getAuction(ctx, auctionID); err != nil {
		return storage.Paged[auction.Bid]{}, err
	}
	paged, err := e.store.ListBidHistory(ctx, auctionID, page)
	if err != nil {
		return storage.Paged[auction.Bid]{}, errors.Internal("list bid history", err)
	}
	return paged, nil
}

func (e *Engine) getAuction(ctx context.Context, auctionID string) (auction.Auction, error) {
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return auction.Auction{}, errors.NotFound("AUCTION_NOT_FOUND", "Auction not found")
		}
		return auction.Auction{}, errors.Internal("load auction", err)
	}
	return a, nil
}
