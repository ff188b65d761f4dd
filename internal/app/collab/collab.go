// Package collab declares the external collaborator contracts the engines
// consume, with an in-process mock and HTTP adapters for each.
//
// Every call is idempotent keyed by the engine's entity ID, so a retried
// state-machine step never double-applies an external effect.
package collab

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OfferingParams describes the security offering created for an asset.
type OfferingParams struct {
	AssetID           string          `json:"assetId"`
	Name              string          `json:"name"`
	Symbol            string          `json:"symbol"`
	TotalSupply       int64           `json:"totalSupply"`
	PricePerToken     decimal.Decimal `json:"pricePerToken"`
	MinimumInvestment decimal.Decimal `json:"minimumInvestment"`
}

// TokenDeployment is the result of deploying an offering's token.
type TokenDeployment struct {
	MintAddress string `json:"mintAddress"`
	MetadataURI string `json:"metadataUri"`
	TxSignature string `json:"txSignature"`
}

// Tokenization creates offerings and deploys their on-chain tokens.
type Tokenization interface {
	CreateOffering(ctx context.Context, params OfferingParams) (offeringID string, err error)
	DeployToken(ctx context.Context, offeringID string) (TokenDeployment, error)
}

// EscrowRequest opens an escrow for a transaction or bid. ReferenceID is the
// engine's entity ID and doubles as the idempotency key.
type EscrowRequest struct {
	ReferenceID string          `json:"referenceId"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// Escrow holds funds between payment and token transfer.
type Escrow interface {
	Open(ctx context.Context, req EscrowRequest) (escrowAddress string, err error)
	Release(ctx context.Context, referenceID string) error
	Refund(ctx context.Context, referenceID, recipient string) error
}

// Payment verifies inbound transfers and executes outbound ones.
type Payment interface {
	VerifyInbound(ctx context.Context, signature string, expectedAmount decimal.Decimal, destination string) (bool, error)
	TransferOut(ctx context.Context, from, to string, amount decimal.Decimal) (signature string, err error)
}

// TransferRequest moves asset tokens between wallets.
type TransferRequest struct {
	ReferenceID string `json:"referenceId"`
	Mint        string `json:"mint"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      int64  `json:"amount"`
}

// TokenTransfer moves asset tokens on chain.
type TokenTransfer interface {
	Transfer(ctx context.Context, req TransferRequest) (signature string, err error)
}

// KYCResult is the verification status of one wallet.
type KYCResult struct {
	Verified  bool      `json:"verified"`
	Level     string    `json:"level"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// KYC reports identity verification status. Called by the admission layer
// (KYC sync), not per request.
type KYC interface {
	IsVerified(ctx context.Context, walletAddress string) (KYCResult, error)
}

// Set bundles one implementation of each collaborator.
type Set struct {
	Tokenization Tokenization
	Escrow       Escrow
	Payment      Payment
	Transfer     TokenTransfer
	KYC          KYC
}
