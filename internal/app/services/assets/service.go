// Package assets implements the asset tokenization lifecycle, the document
// registry and the marketplace queries.
package assets

import (
	"context"
	stderrors "errors"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// Service orchestrates asset state against the store and the tokenization
// collaborator.
type Service struct {
	store        storage.Store
	tokenization collab.Tokenization
	log          *logger.Logger
}

// New creates the assets service.
func New(store storage.Store, tokenization collab.Tokenization, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assets")
	}
	return &Service{store: store, tokenization: tokenization, log: log}
}

// CreateInput carries the fields for a new asset registration.
type CreateInput struct {
	BankID        string           `json:"bankId"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	AssetType     asset.Type       `json:"assetType"`
	TotalValue    decimal.Decimal  `json:"totalValue"`
	TotalSupply   int64            `json:"totalSupply"`
	PricePerToken *decimal.Decimal `json:"pricePerToken,omitempty"`
}

// Create registers a new asset in (DRAFT, UNLISTED). pricePerToken defaults
// to totalValue / totalSupply.
func (s *Service) Create(ctx context.Context, in CreateInput) (asset.Asset, error) {
	if in.Name == "" {
		return asset.Asset{}, errors.InvalidInput("", "Asset name is required")
	}
	if !in.AssetType.IsValid() {
		return asset.Asset{}, errors.InvalidInput("", "Unknown asset type")
	}
	if !in.TotalValue.IsPositive() {
		return asset.Asset{}, errors.InvalidInput("", "totalValue must be positive")
	}
	if in.TotalSupply <= 0 {
		return asset.Asset{}, errors.InvalidInput("", "totalSupply must be positive")
	}

	if _, err := s.store.GetBank(ctx, in.BankID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return asset.Asset{}, errors.NotFound("BANK_NOT_FOUND", "Bank not found")
		}
		return asset.Asset{}, errors.Internal("load bank", err)
	}

	pricePerToken := in.TotalValue.Div(decimal.NewFromInt(in.TotalSupply))
	if in.PricePerToken != nil {
		if !in.PricePerToken.IsPositive() {
			return asset.Asset{}, errors.InvalidInput("", "pricePerToken must be positive")
		}
		pricePerToken = *in.PricePerToken
	}

	created, err := s.store.CreateAsset(ctx, asset.Asset{
		BankID:             in.BankID,
		Name:               in.Name,
		Description:        in.Description,
		AssetType:          in.AssetType,
		TotalValue:         in.TotalValue,
		TotalSupply:        in.TotalSupply,
		PricePerToken:      pricePerToken,
		TokenizationStatus: asset.StatusDraft,
		ListingStatus:      asset.ListingUnlisted,
	})
	if err != nil {
		return asset.Asset{}, errors.Internal("create asset", err)
	}

	s.log.WithFields(map[string]any{"assetId": created.ID, "bankId": created.BankID}).Info("asset created")
	return created, nil
}

// UpdateInput carries a partial asset update. Nil fields are left unchanged.
type UpdateInput struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	TotalValue    *decimal.Decimal `json:"totalValue,omitempty"`
	TotalSupply   *int64           `json:"totalSupply,omitempty"`
	PricePerToken *decimal.Decimal `json:"pricePerToken,omitempty"`
}

// Update applies a partial update. Permitted only before tokenization
// succeeds.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (asset.Asset, error) {
	existing, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}

	switch existing.TokenizationStatus {
	case asset.StatusDraft, asset.StatusPendingReview, asset.StatusFailed:
	case asset.StatusTokenized:
		return asset.Asset{}, errors.InvalidStatus("ASSET_TOKENIZED", "Tokenized assets cannot be updated")
	default:
		return asset.Asset{}, errors.InvalidStatus("", "Asset cannot be updated in status "+string(existing.TokenizationStatus))
	}

	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Description != nil {
		existing.Description = *in.Description
	}
	if in.TotalValue != nil {
		if !in.TotalValue.IsPositive() {
			return asset.Asset{}, errors.InvalidInput("", "totalValue must be positive")
		}
		existing.TotalValue = *in.TotalValue
	}
	if in.TotalSupply != nil {
		if *in.TotalSupply <= 0 {
			return asset.Asset{}, errors.InvalidInput("", "totalSupply must be positive")
		}
		existing.TotalSupply = *in.TotalSupply
	}
	if in.PricePerToken != nil {
		if !in.PricePerToken.IsPositive() {
			return asset.Asset{}, errors.InvalidInput("", "pricePerToken must be positive")
		}
		existing.PricePerToken = *in.PricePerToken
	} else if in.TotalValue != nil || in.TotalSupply != nil {
		existing.PricePerToken = existing.TotalValue.Div(decimal.NewFromInt(existing.TotalSupply))
	}

	updated, err := s.store.UpdateAsset(ctx, existing)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}
	return updated, nil
}

// Delete removes a DRAFT asset and its documents.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.getAsset(ctx, id)
	if err != nil {
		return err
	}
	if existing.TokenizationStatus != asset.StatusDraft {
		return errors.InvalidStatus("CANNOT_DELETE", "Only DRAFT assets can be deleted")
	}

	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		if err := tx.DeleteDocumentsByAsset(ctx, id); err != nil {
			return err
		}
		return tx.DeleteAsset(ctx, id)
	})
	if err != nil {
		return errors.Internal("delete asset", err)
	}

	s.log.WithField("assetId", id).Info("asset deleted")
	return nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, id string) (asset.Asset, error) {
	return s.getAsset(ctx, id)
}

// List returns assets matching the filter, unrestricted.
func (s *Service) List(ctx context.Context, f asset.Filter, page storage.Page, sort storage.Sort) (storage.Paged[asset.Asset], error) {
	paged, err := s.store.ListAssets(ctx, f, page, sort)
	if err != nil {
		return storage.Paged[asset.Asset]{}, errors.Internal("list assets", err)
	}
	return paged, nil
}

// Browse returns marketplace-visible assets: LISTED only, composed with the
// caller's filter.
func (s *Service) Browse(ctx context.Context, f asset.Filter, page storage.Page, sort storage.Sort) (storage.Paged[asset.Asset], error) {
	f.ListingStatus = asset.ListingListed
	return s.List(ctx, f, page, sort)
}

// Stats summarizes an asset's sale progress.
func (s *Service) Stats(ctx context.Context, id string) (asset.Stats, error) {
	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Stats{}, err
	}

	sold, err := s.store.SumHoldings(ctx, id)
	if err != nil {
		return asset.Stats{}, errors.Internal("sum holdings", err)
	}
	completed, investors, err := s.store.AssetSaleStats(ctx, id)
	if err != nil {
		return asset.Stats{}, errors.Internal("asset sale stats", err)
	}

	return asset.Stats{
		AssetID:          a.ID,
		TotalValue:       a.TotalValue,
		TotalSupply:      a.TotalSupply,
		PricePerToken:    a.PricePerToken,
		SoldTokens:       sold,
		AvailableTokens:  a.TotalSupply - sold,
		TransactionCount: completed,
		InvestorCount:    investors,
	}, nil
}

func (s *Service) getAsset(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return asset.Asset{}, errors.NotFound("ASSET_NOT_FOUND", "Asset not found")
		}
		return asset.Asset{}, errors.Internal("load asset", err)
	}
	return a, nil
}
