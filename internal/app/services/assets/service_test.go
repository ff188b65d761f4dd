package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/memory"
	svcerrors "github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service *Service
	store   *memory.Store
	mock    *collab.Mock
	bank    identity.Bank
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	mock := collab.NewMock()

	bank, err := store.CreateBank(context.Background(), identity.Bank{Name: "First Bank", Code: "FB"})
	require.NoError(t, err)

	return &fixture{
		service: New(store, mock, nil),
		store:   store,
		mock:    mock,
		bank:    bank,
	}
}

func adminCtx() context.Context {
	return logging.WithUser(context.Background(), "admin", string(identity.RolePlatformAdmin))
}

func (f *fixture) createDraft(t *testing.T) asset.Asset {
	t.Helper()
	a, err := f.service.Create(context.Background(), CreateInput{
		BankID:      f.bank.ID,
		Name:        "Prop-1",
		AssetType:   asset.TypeRealEstate,
		TotalValue:  decimal.NewFromInt(1_000_000),
		TotalSupply: 10_000,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) uploadRequiredDocuments(t *testing.T, assetID string) {
	t.Helper()
	for _, docType := range asset.RequiredDocumentTypes {
		_, err := f.service.AddDocument(context.Background(), assetID, DocumentInput{
			Type:       docType,
			Name:       string(docType) + ".pdf",
			StorageKey: "s3://" + assetID + "/" + string(docType),
			MimeType:   "application/pdf",
			SizeBytes:  1024,
			UploadedBy: "uploader",
		})
		require.NoError(t, err)
	}
}

func TestCreateDerivesPricePerToken(t *testing.T) {
	f := newFixture(t)
	a := f.createDraft(t)

	assert.True(t, a.PricePerToken.Equal(decimal.NewFromInt(100)), "pricePerToken = %s", a.PricePerToken)
	assert.Equal(t, asset.StatusDraft, a.TokenizationStatus)
	assert.Equal(t, asset.ListingUnlisted, a.ListingStatus)
}

func TestCreateUnknownBank(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateInput{
		BankID:      "missing",
		Name:        "X",
		AssetType:   asset.TypeBond,
		TotalValue:  decimal.NewFromInt(100),
		TotalSupply: 10,
	})
	serviceErr := svcerrors.GetServiceError(err)
	assert.Equal(t, "BANK_NOT_FOUND", serviceErr.Code)
	assert.Equal(t, 404, serviceErr.HTTPStatus)
}

func TestFullLifecycleToListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)

	f.uploadRequiredDocuments(t, a.ID)

	a, err := f.service.SubmitForReview(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusPendingReview, a.TokenizationStatus)

	a, err = f.service.ApproveForTokenization(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusPendingTokenization, a.TokenizationStatus)

	a, err = f.service.Tokenize(ctx, a.ID, TokenizeInput{
		Symbol:            "P1A",
		MinimumInvestment: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, asset.StatusTokenized, a.TokenizationStatus)
	assert.Equal(t, "offering-"+a.ID, a.TokenizationOfferingID)
	assert.Equal(t, "mint-offering-"+a.ID, a.MintAddress)
	assert.False(t, a.TokenizedAt.IsZero())

	a, err = f.service.ListOnMarketplace(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.ListingListed, a.ListingStatus)
	assert.False(t, a.ListedAt.IsZero())
}

func TestSubmitForReviewListsMissingDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)

	// Only the appraisal is on file.
	_, err := f.service.AddDocument(ctx, a.ID, DocumentInput{
		Type: asset.DocAppraisal, Name: "appraisal.pdf", StorageKey: "k1",
	})
	require.NoError(t, err)

	_, err = f.service.SubmitForReview(ctx, a.ID)
	serviceErr := svcerrors.GetServiceError(err)
	assert.Equal(t, "MISSING_DOCUMENTS", serviceErr.Code)
	assert.Equal(t, []string{string(asset.DocLegalOpinion)}, serviceErr.Details["missing"])
}

func TestSubmitForReviewIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)
	f.uploadRequiredDocuments(t, a.ID)

	first, err := f.service.SubmitForReview(ctx, a.ID)
	require.NoError(t, err)
	second, err := f.service.SubmitForReview(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TokenizationStatus, second.TokenizationStatus)
}

func TestTokenizeRetryAfterFailureConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)
	f.uploadRequiredDocuments(t, a.ID)

	_, err := f.service.SubmitForReview(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.service.ApproveForTokenization(ctx, a.ID)
	require.NoError(t, err)

	f.mock.FailWith("DeployToken", errors.New("chain unavailable"))
	_, err = f.service.Tokenize(ctx, a.ID, TokenizeInput{Symbol: "P1A"})
	serviceErr := svcerrors.GetServiceError(err)
	assert.Equal(t, "TOKENIZATION_FAILED", serviceErr.Code)
	assert.Equal(t, 502, serviceErr.HTTPStatus)

	failed, err := f.service.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusFailed, failed.TokenizationStatus)
	// The offering survived the failure and is reused on retry.
	assert.NotEmpty(t, failed.TokenizationOfferingID)

	retried, err := f.service.Tokenize(ctx, a.ID, TokenizeInput{Symbol: "P1A"})
	require.NoError(t, err)
	assert.Equal(t, asset.StatusTokenized, retried.TokenizationStatus)
	assert.Len(t, f.mock.Calls("CreateOffering"), 1)

	// Tokenize on a TOKENIZED asset returns the entity unchanged.
	again, err := f.service.Tokenize(ctx, a.ID, TokenizeInput{Symbol: "P1A"})
	require.NoError(t, err)
	assert.Equal(t, retried.MintAddress, again.MintAddress)
}

func TestTokenizeFromDraftRequiresPlatformAdmin(t *testing.T) {
	f := newFixture(t)
	a := f.createDraft(t)

	_, err := f.service.Tokenize(context.Background(), a.ID, TokenizeInput{Symbol: "P1A"})
	assert.Equal(t, svcerrors.CodeForbidden, svcerrors.GetServiceError(err).Code)

	tokenized, err := f.service.Tokenize(adminCtx(), a.ID, TokenizeInput{Symbol: "P1A"})
	require.NoError(t, err)
	assert.Equal(t, asset.StatusTokenized, tokenized.TokenizationStatus)
}

func TestTokenizeRejectsBadSymbol(t *testing.T) {
	f := newFixture(t)
	a := f.createDraft(t)

	for _, symbol := range []string{"p1", "AB", "TOOLONGSYMBOL", "A B"} {
		_, err := f.service.Tokenize(adminCtx(), a.ID, TokenizeInput{Symbol: symbol})
		assert.Equal(t, svcerrors.CodeInvalidInput, svcerrors.GetServiceError(err).Code, "symbol %q", symbol)
	}
}

func TestListOnMarketplaceRequiresTokenized(t *testing.T) {
	f := newFixture(t)
	a := f.createDraft(t)

	_, err := f.service.ListOnMarketplace(context.Background(), a.ID)
	assert.Equal(t, "NOT_TOKENIZED", svcerrors.GetServiceError(err).Code)
}

func TestUpdateRejectedAfterTokenization(t *testing.T) {
	f := newFixture(t)
	a := f.createDraft(t)

	_, err := f.service.Tokenize(adminCtx(), a.ID, TokenizeInput{Symbol: "P1A"})
	require.NoError(t, err)

	name := "renamed"
	_, err = f.service.Update(context.Background(), a.ID, UpdateInput{Name: &name})
	assert.Equal(t, "ASSET_TOKENIZED", svcerrors.GetServiceError(err).Code)
}

func TestDeleteOnlyDraftAndCascadesDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)
	f.uploadRequiredDocuments(t, a.ID)

	require.NoError(t, f.service.Delete(ctx, a.ID))

	_, err := f.service.Get(ctx, a.ID)
	assert.Equal(t, "ASSET_NOT_FOUND", svcerrors.GetServiceError(err).Code)

	// Documents are gone with the asset.
	documents, err := f.store.ListDocuments(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, documents)

	b := f.createDraft(t)
	_, err = f.service.Tokenize(adminCtx(), b.ID, TokenizeInput{Symbol: "P1B"})
	require.NoError(t, err)
	err = f.service.Delete(ctx, b.ID)
	assert.Equal(t, "CANNOT_DELETE", svcerrors.GetServiceError(err).Code)
}

func TestBrowseOnlyListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listed := f.createDraft(t)
	_, err := f.service.Tokenize(adminCtx(), listed.ID, TokenizeInput{Symbol: "P1A"})
	require.NoError(t, err)
	_, err = f.service.ListOnMarketplace(ctx, listed.ID)
	require.NoError(t, err)

	f.createDraft(t) // stays unlisted

	page, err := f.service.Browse(ctx, asset.Filter{}, storage.Page{}, storage.Sort{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, listed.ID, page.Data[0].ID)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createDraft(t)

	stats, err := f.service.Stats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), stats.TotalSupply)
	assert.Equal(t, int64(0), stats.SoldTokens)
	assert.Equal(t, int64(10_000), stats.AvailableTokens)
}
