// Package auction holds the time-boxed auction aggregate and its bids.
package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the auction state machine.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusEnded     Status = "ENDED"
	StatusSettled   Status = "SETTLED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusEnded, StatusSettled, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the machine permits the move. Cancellation
// is allowed any time before settlement.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusCancelled {
		return s != StatusSettled && s != StatusCancelled
	}
	switch s {
	case StatusScheduled:
		return next == StatusActive
	case StatusActive:
		return next == StatusEnded || next == StatusSettled
	case StatusEnded:
		return next == StatusSettled
	}
	return false
}

// Auction is a competitive sale of a fixed token amount of one asset.
// CurrentBidder == "" means no bid has been placed.
type Auction struct {
	ID            string          `json:"id"`
	AssetID       string          `json:"assetId"`
	ReservePrice  decimal.Decimal `json:"reservePrice"`
	CurrentBid    decimal.Decimal `json:"currentBid"`
	CurrentBidder string          `json:"currentBidder,omitempty"`
	TokenAmount   int64           `json:"tokenAmount"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	Status        Status          `json:"status"`
	SettledAt     time.Time       `json:"settledAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasBid reports whether any bid has been accepted.
func (a Auction) HasBid() bool {
	return a.CurrentBidder != ""
}

// Overlaps reports whether [a.StartTime, a.EndTime] intersects [start, end].
func (a Auction) Overlaps(start, end time.Time) bool {
	return !a.StartTime.After(end) && !start.After(a.EndTime)
}

// Bid is a single offer in an auction, identified by the bidder's wallet.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auctionId"`
	Bidder    string          `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature,omitempty"`
	IsWinning bool            `json:"isWinning"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Filter narrows auction queries. Nil range bounds are open.
type Filter struct {
	AssetID    string
	Status     Status
	MinReserve *decimal.Decimal
	MaxReserve *decimal.Decimal
}
