// Package trading implements the purchase transaction engine and the
// reconciler that drives stuck transactions forward.
package trading

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// escrowWindow bounds how long an opened escrow stays valid.
const escrowWindow = 24 * time.Hour

// Engine orchestrates purchase transactions through escrow, payment, token
// transfer and completion.
type Engine struct {
	store    storage.Store
	escrow   collab.Escrow
	payment  collab.Payment
	transfer collab.TokenTransfer
	log      *logger.Logger
}

// NewEngine creates the transaction engine.
func NewEngine(store storage.Store, escrow collab.Escrow, payment collab.Payment, transfer collab.TokenTransfer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("trading")
	}
	return &Engine{store: store, escrow: escrow, payment: payment, transfer: transfer, log: log}
}

// statusRank orders the happy-path statuses so replayed advancements on an
// already-advanced transaction can return the entity instead of erroring.
var statusRank = map[trade.Status]int{
	trade.StatusPending:           0,
	trade.StatusEscrowCreated:     1,
	trade.StatusPaymentReceived:   2,
	trade.StatusTokensTransferred: 3,
	trade.StatusCompleted:         4,
}

// CreateInput starts a primary sale.
type CreateInput struct {
	BuyerID     string `json:"buyerId"`
	AssetID     string `json:"assetId"`
	TokenAmount int64  `json:"tokenAmount"`
}

// Create validates the purchase preconditions and inserts a PENDING
// transaction priced at the asset's fixed pricePerToken.
func (e *Engine) Create(ctx context.Context, in CreateInput) (trade.Transaction, error) {
	if in.TokenAmount <= 0 {
		return trade.Transaction{}, errors.InvalidInput("", "tokenAmount must be positive")
	}

	buyer, err := e.store.GetUser(ctx, in.BuyerID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return trade.Transaction{}, errors.NotFound("BUYER_NOT_FOUND", "Buyer not found")
		}
		return trade.Transaction{}, errors.Internal("load buyer", err)
	}
	if buyer.KYCStatus != identity.KYCVerified {
		return trade.Transaction{}, errors.KYCRequired("")
	}

	a, err := e.store.GetAsset(ctx, in.AssetID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return trade.Transaction{}, errors.NotFound("ASSET_NOT_FOUND", "Asset not found")
		}
		return trade.Transaction{}, errors.Internal("load asset", err)
	}
	if a.ListingStatus != asset.ListingListed {
		return trade.Transaction{}, errors.InvalidStatus("NOT_LISTED", "Asset is not listed for sale")
	}
	if !a.PricePerToken.IsPositive() {
		return trade.Transaction{}, errors.InvalidStatus("NO_PRICE", "Asset has no price per token")
	}

	sold, err := e.store.SumHoldings(ctx, in.AssetID)
	if err != nil {
		return trade.Transaction{}, errors.Internal("sum holdings", err)
	}
	available := a.TotalSupply - sold
	if available < in.TokenAmount {
		return trade.Transaction{}, errors.InvalidStatus("INSUFFICIENT_SUPPLY",
			fmt.Sprintf("Only %d tokens available", available))
	}

	amount := a.PricePerToken.Mul(decimal.NewFromInt(in.TokenAmount))
	created, err := e.store.CreateTransaction(ctx, trade.Transaction{
		AssetID:     in.AssetID,
		BuyerID:     in.BuyerID,
		SellerID:    a.BankID,
		Type:        trade.TypePrimarySale,
		Amount:      amount,
		TokenAmount: in.TokenAmount,
		Status:      trade.StatusPending,
	})
	if err != nil {
		return trade.Transaction{}, errors.Internal("create transaction", err)
	}

	metrics.RecordTransactionTransition(string(trade.StatusPending))
	e.log.WithFields(map[string]any{
		"txId":    created.ID,
		"assetId": in.AssetID,
		"buyerId": in.BuyerID,
		"amount":  amount.String(),
	}).Info("transaction created")
	return created, nil
}

// advance checks the replay/precondition rules for a step from → to. It
// returns (entity, true) when the call is a replay that should return the
// current entity unchanged.
func advance(tx trade.Transaction, from, to trade.Status) (trade.Transaction, bool, error) {
	if tx.Status == from {
		return tx, false, nil
	}
	if rank, ok := statusRank[tx.Status]; ok && rank >= statusRank[to] {
		return tx, true, nil
	}
	return trade.Transaction{}, false, errors.InvalidStatus("",
		fmt.Sprintf("Transaction is %s, expected %s", tx.Status, from))
}

// CreateEscrow opens an escrow for a PENDING transaction.
func (e *Engine) CreateEscrow(ctx context.Context, txID string) (trade.Transaction, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return trade.Transaction{}, err
	}
	if current, replay, err := advance(tx, trade.StatusPending, trade.StatusEscrowCreated); err != nil {
		return trade.Transaction{}, err
	} else if replay {
		return current, nil
	}

	buyer, err := e.store.GetUser(ctx, tx.BuyerID)
	if err != nil {
		return trade.Transaction{}, errors.Internal("load buyer", err)
	}

	start := time.Now()
	escrowAddress, err := e.escrow.Open(ctx, collab.EscrowRequest{
		ReferenceID: tx.ID,
		Buyer:       buyer.WalletAddress,
		Seller:      tx.SellerID,
		Amount:      tx.Amount,
		ExpiresAt:   time.Now().UTC().Add(escrowWindow),
	})
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	if err != nil {
		return trade.Transaction{}, errors.CollaboratorFailure("escrow", err)
	}

	tx.EscrowAddress = escrowAddress
	tx.Status = trade.StatusEscrowCreated
	updated, err := e.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return trade.Transaction{}, errors.Internal("update transaction", err)
	}

	metrics.RecordTransactionTransition(string(trade.StatusEscrowCreated))
	return updated, nil
}

// RecordPayment verifies the inbound payment signature and advances the
// transaction to PAYMENT_RECEIVED.
func (e *Engine) RecordPayment(ctx context.Context, txID, paymentSignature string) (trade.Transaction, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return trade.Transaction{}, err
	}
	if current, replay, err := advance(tx, trade.StatusEscrowCreated, trade.StatusPaymentReceived); err != nil {
		return trade.Transaction{}, err
	} else if replay {
		return current, nil
	}

	start := time.Now()
	verified, err := e.payment.VerifyInbound(ctx, paymentSignature, tx.Amount, tx.EscrowAddress)
	metrics.RecordCollaboratorCall("payment", time.Since(start), err)
	if err != nil {
		return trade.Transaction{}, errors.CollaboratorFailure("payment", err)
	}
	if !verified {
		return trade.Transaction{}, errors.InvalidInput("PAYMENT_NOT_VERIFIED", "Payment could not be verified")
	}

	tx.TxSignature = paymentSignature
	tx.Status = trade.StatusPaymentReceived
	updated, err := e.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return trade.Transaction{}, errors.Internal("update transaction", err)
	}

	metrics.RecordTransactionTransition(string(trade.StatusPaymentReceived))
	return updated, nil
}

// TransferTokens instructs the token-transfer collaborator and advances the
// transaction to TOKENS_TRANSFERRED.
func (e *Engine) TransferTokens(ctx context.Context, txID string) (trade.Transaction, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return trade.Transaction{}, err
	}
	if current, replay, err := advance(tx, trade.StatusPaymentReceived, trade.StatusTokensTransferred); err != nil {
		return trade.Transaction{}, err
	} else if replay {
		return current, nil
	}

	a, err := e.store.GetAsset(ctx, tx.AssetID)
	if err != nil {
		return trade.Transaction{}, errors.Internal("load asset", err)
	}
	buyer, err := e.store.GetUser(ctx, tx.BuyerID)
	if err != nil {
		return trade.Transaction{}, errors.Internal("load buyer", err)
	}

	start := time.Now()
	signature, err := e.transfer.Transfer(ctx, collab.TransferRequest{
		ReferenceID: tx.ID,
		Mint:        a.MintAddress,
		From:        tx.SellerID,
		To:          buyer.WalletAddress,
		Amount:      tx.TokenAmount,
	})
	metrics.RecordCollaboratorCall("transfer", time.Since(start), err)
	if err != nil {
		return trade.Transaction{}, errors.CollaboratorFailure("transfer", err)
	}

	tx.TxSignature = signature
	tx.Status = trade.StatusTokensTransferred
	updated, err := e.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return trade.Transaction{}, errors.Internal("update transaction", err)
	}

	metrics.RecordTransactionTransition(string(trade.StatusTokensTransferred))
	return updated, nil
}

// errOverbooked signals that completion would violate supply conservation.
var errOverbooked = stderrors.New("supply exhausted at completion")

// Complete finishes the purchase in one unit of work: the transaction goes
// COMPLETED and the buyer's holding absorbs the tokens and cost. The supply
// re-check runs against row-locked state; a loser of the race is marked
// FAILED and refunded. Replay on a COMPLETED transaction returns the entity
// unchanged.
func (e *Engine) Complete(ctx context.Context, txID string) (trade.Transaction, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return trade.Transaction{}, err
	}
	if tx.Status == trade.StatusCompleted {
		return tx, nil
	}
	if tx.Status != trade.StatusTokensTransferred {
		return trade.Transaction{}, errors.InvalidStatus("",
			fmt.Sprintf("Transaction is %s, expected %s", tx.Status, trade.StatusTokensTransferred))
	}

	profile, err := e.store.GetProfileByUser(ctx, tx.BuyerID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return trade.Transaction{}, errors.InvalidStatus("NO_PROFILE", "Buyer has no investor profile")
		}
		return trade.Transaction{}, errors.Internal("load profile", err)
	}

	var completed trade.Transaction
	err = e.store.Atomic(ctx, func(s storage.Store) error {
		locked, err := s.GetTransactionForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if locked.Status == trade.StatusCompleted {
			completed = locked
			return nil
		}
		if locked.Status != trade.StatusTokensTransferred {
			return errors.InvalidStatus("",
				fmt.Sprintf("Transaction is %s, expected %s", locked.Status, trade.StatusTokensTransferred))
		}

		a, err := s.GetAssetForUpdate(ctx, locked.AssetID)
		if err != nil {
			return err
		}
		sold, err := s.SumHoldings(ctx, locked.AssetID)
		if err != nil {
			return err
		}
		if sold+locked.TokenAmount > a.TotalSupply {
			return errOverbooked
		}

		locked.Status = trade.StatusCompleted
		locked.CompletedAt = time.Now().UTC()
		if locked, err = s.UpdateTransaction(ctx, locked); err != nil {
			return err
		}
		if _, err := s.UpsertHolding(ctx, profile.ID, locked.AssetID, locked.TokenAmount, locked.Amount); err != nil {
			return err
		}

		// The sale that exhausts the supply also flips the listing.
		if sold+locked.TokenAmount == a.TotalSupply {
			a.ListingStatus = asset.ListingSoldOut
			if _, err := s.UpdateAsset(ctx, a); err != nil {
				return err
			}
		}

		completed = locked
		return nil
	})
	if stderrors.Is(err, errOverbooked) {
		return trade.Transaction{}, e.failOverbooked(ctx, tx)
	}
	if err != nil {
		return trade.Transaction{}, errors.GetServiceError(err)
	}

	e.releaseEscrow(ctx, completed)
	metrics.RecordTransactionTransition(string(trade.StatusCompleted))
	e.log.WithFields(map[string]any{"txId": txID, "assetId": completed.AssetID}).Info("transaction completed")
	return completed, nil
}

// failOverbooked marks the race loser FAILED and issues a best-effort refund.
func (e *Engine) failOverbooked(ctx context.Context, tx trade.Transaction) error {
	tx.Status = trade.StatusFailed
	tx.FailureReason = "insufficient supply at completion"
	if _, err := e.store.UpdateTransaction(ctx, tx); err != nil {
		e.log.WithError(err).WithField("txId", tx.ID).Error("mark transaction failed")
	}
	metrics.RecordTransactionTransition(string(trade.StatusFailed))
	e.refundEscrow(ctx, tx)
	return errors.InvalidStatus("INSUFFICIENT_SUPPLY", "Supply exhausted before completion")
}

func (e *Engine) releaseEscrow(ctx context.Context, tx trade.Transaction) {
	if tx.EscrowAddress == "" {
		return
	}
	start := time.Now()
	err := e.escrow.Release(ctx, tx.ID)
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	if err != nil {
		e.log.WithError(err).WithField("txId", tx.ID).Warn("escrow release failed")
	}
}

func (e *Engine) refundEscrow(ctx context.Context, tx trade.Transaction) {
	if tx.EscrowAddress == "" {
		return
	}
	recipient := tx.BuyerID
	if buyer, err := e.store.GetUser(ctx, tx.BuyerID); err == nil && buyer.WalletAddress != "" {
		recipient = buyer.WalletAddress
	}
	start := time.Now()
	err := e.escrow.Refund(ctx, tx.ID, recipient)
	metrics.RecordCollaboratorCall("escrow", time.Since(start), err)
	if err != nil {
		e.log.WithError(err).WithField("txId", tx.ID).Warn("escrow refund failed")
	}
}

// Cancel aborts a non-terminal transaction, recording the reason. An opened
// escrow is refunded best effort.
func (e *Engine) Cancel(ctx context.Context, txID, reason string) (trade.Transaction, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return trade.Transaction{}, err
	}
	if tx.Status.IsTerminal() {
		return trade.Transaction{}, errors.InvalidStatus("",
			fmt.Sprintf("Transaction in %s cannot be cancelled", tx.Status))
	}

	tx.Status = trade.StatusCancelled
	tx.FailureReason = reason
	updated, err := e.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return trade.Transaction{}, errors.Internal("update transaction", err)
	}

	e.refundEscrow(ctx, updated)
	metrics.RecordTransactionTransition(string(trade.StatusCancelled))
	e.log.WithFields(map[string]any{"txId": txID, "reason": reason}).Info("transaction cancelled")
	return updated, nil
}

// Get returns one transaction.
func (e *Engine) Get(ctx context.Context, txID string) (trade.Transaction, error) {
	return e.getTransaction(ctx, txID)
}

// List returns transactions matching the filter.
func (e *Engine) List(ctx context.Context, f trade.Filter, page storage.Page, sort storage.Sort) (storage.Paged[trade.Transaction], error) {
	paged, err := e.store.ListTransactions(ctx, f, page, sort)
	if err != nil {
		return storage.Paged[trade.Transaction]{}, errors.Internal("list transactions", err)
	}
	return paged, nil
}

// UserStats aggregates a user's purchase history.
func (e *Engine) UserStats(ctx context.Context, userID string) (trade.Stats, error) {
	stats, err := e.store.TransactionStats(ctx, trade.Filter{BuyerID: userID})
	if err != nil {
		return trade.Stats{}, errors.Internal("transaction stats", err)
	}
	return stats, nil
}

func (e *Engine) getTransaction(ctx context.Context, txID string) (trade.Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return trade.Transaction{}, errors.NotFound("TRANSACTION_NOT_FOUND", "Transaction not found")
		}
		return trade.Transaction{}, errors.Internal("load transaction", err)
	}
	return tx, nil
}
