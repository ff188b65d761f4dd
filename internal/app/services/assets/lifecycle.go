package assets

import (
	"context"
	"regexp"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9-]{3,10}$`)

// SubmitForReview moves a DRAFT asset to PENDING_REVIEW once the required
// documents are on file. Replay on an already-submitted asset is a no-op.
func (s *Service) SubmitForReview(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}
	if a.TokenizationStatus == asset.StatusPendingReview {
		return a, nil
	}
	if a.TokenizationStatus != asset.StatusDraft {
		return asset.Asset{}, errors.InvalidStatus("", "Only DRAFT assets can be submitted for review")
	}

	documents, err := s.store.ListDocuments(ctx, id)
	if err != nil {
		return asset.Asset{}, errors.Internal("list documents", err)
	}
	present := make(map[asset.DocumentType]bool, len(documents))
	for _, d := range documents {
		present[d.Type] = true
	}
	var missing []string
	for _, required := range asset.RequiredDocumentTypes {
		if !present[required] {
			missing = append(missing, string(required))
		}
	}
	if len(missing) > 0 {
		return asset.Asset{}, errors.InvalidStatus("MISSING_DOCUMENTS", "Required documents are missing").
			WithDetails("missing", missing)
	}

	a.TokenizationStatus = asset.StatusPendingReview
	updated, err := s.store.UpdateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}
	s.log.WithField("assetId", id).Info("asset submitted for review")
	return updated, nil
}

// ApproveForTokenization moves a PENDING_REVIEW asset to PENDING_TOKENIZATION.
// Replay on an already-approved asset is a no-op.
func (s *Service) ApproveForTokenization(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}
	if a.TokenizationStatus == asset.StatusPendingTokenization {
		return a, nil
	}
	if a.TokenizationStatus != asset.StatusPendingReview {
		return asset.Asset{}, errors.InvalidStatus("", "Only PENDING_REVIEW assets can be approved")
	}

	a.TokenizationStatus = asset.StatusPendingTokenization
	updated, err := s.store.UpdateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}
	s.log.WithField("assetId", id).Info("asset approved for tokenization")
	return updated, nil
}

// TokenizeInput parameterizes the security offering.
type TokenizeInput struct {
	Symbol            string           `json:"symbol"`
	MinimumInvestment decimal.Decimal  `json:"minimumInvestment"`
	MaximumInvestment *decimal.Decimal `json:"maximumInvestment,omitempty"`
	StartDate         *time.Time       `json:"startDate,omitempty"`
	EndDate           *time.Time       `json:"endDate,omitempty"`
}

// Tokenize creates the offering and deploys the token through the
// tokenization collaborator. Collaborator failures leave the asset FAILED and
// a retry converges: the same asset tokenizes at most once.
//
// The direct DRAFT path skips review and is reserved for platform admins.
func (s *Service) Tokenize(ctx context.Context, id string, in TokenizeInput) (asset.Asset, error) {
	if !symbolPattern.MatchString(in.Symbol) {
		return asset.Asset{}, errors.InvalidInput("", "symbol must match ^[A-Z0-9-]{3,10}$")
	}

	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}

	switch a.TokenizationStatus {
	case asset.StatusTokenized:
		return a, nil
	case asset.StatusDraft:
		if logging.GetRole(ctx) != string(identity.RolePlatformAdmin) {
			return asset.Asset{}, errors.Forbidden("Direct tokenization from DRAFT requires a platform admin")
		}
	case asset.StatusPendingTokenization, asset.StatusFailed:
	default:
		return asset.Asset{}, errors.InvalidStatus("", "Asset is not ready for tokenization")
	}

	// The offering is created first and persisted so a retry after a deploy
	// failure reuses it instead of creating a second one.
	offeringID := a.TokenizationOfferingID
	if offeringID == "" {
		start := time.Now()
		offeringID, err = s.tokenization.CreateOffering(ctx, collab.OfferingParams{
			AssetID:           a.ID,
			Name:              a.Name,
			Symbol:            in.Symbol,
			TotalSupply:       a.TotalSupply,
			PricePerToken:     a.PricePerToken,
			MinimumInvestment: in.MinimumInvestment,
		})
		metrics.RecordCollaboratorCall("tokenization", time.Since(start), err)
		if err != nil {
			return asset.Asset{}, s.failTokenization(ctx, a, err)
		}
		a.TokenizationOfferingID = offeringID
		if a, err = s.store.UpdateAsset(ctx, a); err != nil {
			return asset.Asset{}, errors.Internal("record offering", err)
		}
	}

	start := time.Now()
	deployment, err := s.tokenization.DeployToken(ctx, offeringID)
	metrics.RecordCollaboratorCall("tokenization", time.Since(start), err)
	if err != nil {
		return asset.Asset{}, s.failTokenization(ctx, a, err)
	}

	a.MintAddress = deployment.MintAddress
	a.MetadataURI = deployment.MetadataURI
	a.TokenizationStatus = asset.StatusTokenized
	a.TokenizedAt = time.Now().UTC()

	updated, err := s.store.UpdateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}

	metrics.RecordTokenization("success")
	s.log.WithFields(map[string]any{
		"assetId":    id,
		"offeringId": offeringID,
		"mint":       deployment.MintAddress,
	}).Info("asset tokenized")
	return updated, nil
}

// failTokenization marks the asset FAILED and surfaces the collaborator
// error. The FAILED state keeps the asset eligible for a tokenize retry.
func (s *Service) failTokenization(ctx context.Context, a asset.Asset, cause error) error {
	a.TokenizationStatus = asset.StatusFailed
	if _, err := s.store.UpdateAsset(ctx, a); err != nil {
		s.log.WithError(err).WithField("assetId", a.ID).Error("mark asset failed")
	}
	metrics.RecordTokenization("failure")
	s.log.WithError(cause).WithField("assetId", a.ID).Warn("tokenization failed")
	return errors.CollaboratorFailure("tokenization", cause).WithCode("TOKENIZATION_FAILED")
}

// ListOnMarketplace makes a tokenized asset purchasable. Replay on a LISTED
// asset is a no-op.
func (s *Service) ListOnMarketplace(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}
	if a.ListingStatus == asset.ListingListed {
		return a, nil
	}
	if a.TokenizationStatus != asset.StatusTokenized {
		return asset.Asset{}, errors.InvalidStatus("NOT_TOKENIZED", "Only tokenized assets can be listed")
	}

	a.ListingStatus = asset.ListingListed
	a.ListedAt = time.Now().UTC()
	updated, err := s.store.UpdateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}
	s.log.WithField("assetId", id).Info("asset listed on marketplace")
	return updated, nil
}

// DelistFromMarketplace removes the asset from the marketplace, from any
// listing state.
func (s *Service) DelistFromMarketplace(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.getAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, err
	}
	if a.ListingStatus == asset.ListingDelisted {
		return a, nil
	}

	a.ListingStatus = asset.ListingDelisted
	updated, err := s.store.UpdateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, errors.Internal("update asset", err)
	}
	s.log.WithField("assetId", id).Info("asset delisted")
	return updated, nil
}
