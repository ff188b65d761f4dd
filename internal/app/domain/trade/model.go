// Package trade holds the purchase transaction aggregate and the per-investor
// portfolio holdings it settles into.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates transaction kinds. SECONDARY_SALE and REDEMPTION exist as
// data only; no engine operation creates them.
type Type string

const (
	TypePrimarySale       Type = "PRIMARY_SALE"
	TypeSecondarySale     Type = "SECONDARY_SALE"
	TypeAuctionSettlement Type = "AUCTION_SETTLEMENT"
	TypeRedemption        Type = "REDEMPTION"
)

// IsValid reports whether the type is a known value.
func (t Type) IsValid() bool {
	switch t {
	case TypePrimarySale, TypeSecondarySale, TypeAuctionSettlement, TypeRedemption:
		return true
	}
	return false
}

// Status is the purchase state machine.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusEscrowCreated     Status = "ESCROW_CREATED"
	StatusPaymentReceived   Status = "PAYMENT_RECEIVED"
	StatusTokensTransferred Status = "TOKENS_TRANSFERRED"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusEscrowCreated, StatusPaymentReceived, StatusTokensTransferred,
		StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the machine permits the move. Cancellation
// is allowed from any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case StatusPending:
		return next == StatusEscrowCreated || next == StatusFailed
	case StatusEscrowCreated:
		return next == StatusPaymentReceived || next == StatusFailed
	case StatusPaymentReceived:
		return next == StatusTokensTransferred || next == StatusFailed
	case StatusTokensTransferred:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusRefunded
	}
	return false
}

// Transaction is a purchase moving through the escrow/payment/transfer flow.
type Transaction struct {
	ID            string          `json:"id"`
	AssetID       string          `json:"assetId"`
	BuyerID       string          `json:"buyerId"`
	SellerID      string          `json:"sellerId,omitempty"`
	Type          Type            `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	TokenAmount   int64           `json:"tokenAmount"`
	EscrowAddress string          `json:"escrowAddress,omitempty"`
	TxSignature   string          `json:"txSignature,omitempty"`
	Status        Status          `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	CompletedAt   time.Time       `json:"completedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Holding is the per-investor, per-asset position. The pair
// (InvestorProfileID, AssetID) is unique.
type Holding struct {
	ID                string          `json:"id"`
	InvestorProfileID string          `json:"investorProfileId"`
	AssetID           string          `json:"assetId"`
	TokenAmount       int64           `json:"tokenAmount"`
	CostBasis         decimal.Decimal `json:"costBasis"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Filter narrows transaction queries.
type Filter struct {
	BuyerID string
	AssetID string
	Type    Type
	Status  Status
}

// Stats aggregates a user's purchase history.
type Stats struct {
	TotalTransactions     int64           `json:"totalTransactions"`
	CompletedTransactions int64           `json:"completedTransactions"`
	TotalInvested         decimal.Decimal `json:"totalInvested"`
	TotalTokens           int64           `json:"totalTokens"`
}
