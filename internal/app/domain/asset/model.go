// Package asset holds the tokenizable asset aggregate and its documents.
package asset

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates supported asset classes.
type Type string

const (
	TypeRealEstate Type = "REAL_ESTATE"
	TypeCommodity  Type = "COMMODITY"
	TypeBond       Type = "BOND"
	TypeEquity     Type = "EQUITY"
	TypeInvoice    Type = "INVOICE"
	TypeOther      Type = "OTHER"
)

// IsValid reports whether the asset type is a known value.
func (t Type) IsValid() bool {
	switch t {
	case TypeRealEstate, TypeCommodity, TypeBond, TypeEquity, TypeInvoice, TypeOther:
		return true
	}
	return false
}

// TokenizationStatus is the asset lifecycle state machine.
type TokenizationStatus string

const (
	StatusDraft               TokenizationStatus = "DRAFT"
	StatusPendingReview       TokenizationStatus = "PENDING_REVIEW"
	StatusPendingTokenization TokenizationStatus = "PENDING_TOKENIZATION"
	StatusTokenized           TokenizationStatus = "TOKENIZED"
	StatusFailed              TokenizationStatus = "FAILED"
)

// IsValid reports whether the status is a known value.
func (s TokenizationStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusPendingTokenization, StatusTokenized, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the machine permits the move.
func (s TokenizationStatus) CanTransitionTo(next TokenizationStatus) bool {
	switch s {
	case StatusDraft:
		// Direct tokenization from DRAFT is admin-only; the service enforces
		// the role, the machine permits the edge.
		return next == StatusPendingReview || next == StatusTokenized || next == StatusFailed
	case StatusPendingReview:
		return next == StatusPendingTokenization
	case StatusPendingTokenization:
		return next == StatusTokenized || next == StatusFailed
	case StatusFailed:
		return next == StatusTokenized || next == StatusFailed
	case StatusTokenized:
		return false
	}
	return false
}

// ListingStatus is the marketplace visibility state.
type ListingStatus string

const (
	ListingUnlisted ListingStatus = "UNLISTED"
	ListingPending  ListingStatus = "PENDING"
	ListingListed   ListingStatus = "LISTED"
	ListingSoldOut  ListingStatus = "SOLD_OUT"
	ListingDelisted ListingStatus = "DELISTED"
)

// IsValid reports whether the listing status is a known value.
func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingUnlisted, ListingPending, ListingListed, ListingSoldOut, ListingDelisted:
		return true
	}
	return false
}

// DocumentType enumerates supported document categories.
type DocumentType string

const (
	DocAppraisal          DocumentType = "APPRAISAL"
	DocLegalOpinion       DocumentType = "LEGAL_OPINION"
	DocFinancialStatement DocumentType = "FINANCIAL_STATEMENT"
	DocTitleDeed          DocumentType = "TITLE_DEED"
	DocInsurance          DocumentType = "INSURANCE"
	DocProspectus         DocumentType = "PROSPECTUS"
	DocTermSheet          DocumentType = "TERM_SHEET"
	DocOther              DocumentType = "OTHER"
)

// IsValid reports whether the document type is a known value.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocAppraisal, DocLegalOpinion, DocFinancialStatement, DocTitleDeed,
		DocInsurance, DocProspectus, DocTermSheet, DocOther:
		return true
	}
	return false
}

// RequiredDocumentTypes lists the documents an asset needs before review.
var RequiredDocumentTypes = []DocumentType{DocAppraisal, DocLegalOpinion}

// Asset is a bank-owned real-world item represented as a token supply.
// A zero TokenizedAt / ListedAt means "not yet".
type Asset struct {
	ID                     string             `json:"id"`
	BankID                 string             `json:"bankId"`
	Name                   string             `json:"name"`
	Description            string             `json:"description,omitempty"`
	AssetType              Type               `json:"assetType"`
	TotalValue             decimal.Decimal    `json:"totalValue"`
	TotalSupply            int64              `json:"totalSupply"`
	PricePerToken          decimal.Decimal    `json:"pricePerToken"`
	MintAddress            string             `json:"mintAddress,omitempty"`
	MetadataURI            string             `json:"metadataUri,omitempty"`
	TokenizationOfferingID string             `json:"tokenizationOfferingId,omitempty"`
	TokenizationStatus     TokenizationStatus `json:"tokenizationStatus"`
	ListingStatus          ListingStatus      `json:"listingStatus"`
	TokenizedAt            time.Time          `json:"tokenizedAt"`
	ListedAt               time.Time          `json:"listedAt"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// Document is asset paperwork metadata; the blob lives upstream under
// StorageKey.
type Document struct {
	ID         string       `json:"id"`
	AssetID    string       `json:"assetId"`
	Type       DocumentType `json:"type"`
	Name       string       `json:"name"`
	StorageKey string       `json:"storageKey"`
	MimeType   string       `json:"mimeType"`
	SizeBytes  int64        `json:"sizeBytes"`
	UploadedBy string       `json:"uploadedBy"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Filter narrows asset queries. Nil range bounds are open.
type Filter struct {
	BankID             string
	AssetType          Type
	TokenizationStatus TokenizationStatus
	ListingStatus      ListingStatus
	MinValue           *decimal.Decimal
	MaxValue           *decimal.Decimal
	Search             string
}

// Stats summarizes an asset's sale progress.
type Stats struct {
	AssetID          string          `json:"assetId"`
	TotalValue       decimal.Decimal `json:"totalValue"`
	TotalSupply      int64           `json:"totalSupply"`
	PricePerToken    decimal.Decimal `json:"pricePerToken"`
	SoldTokens       int64           `json:"soldTokens"`
	AvailableTokens  int64           `json:"availableTokens"`
	TransactionCount int64           `json:"transactionCount"`
	InvestorCount    int64           `json:"investorCount"`
}
