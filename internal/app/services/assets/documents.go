package assets

import (
	"context"
	stderrors "errors"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
)

// DocumentInput registers document metadata; the blob itself lives upstream
// under StorageKey.
type DocumentInput struct {
	Type       asset.DocumentType `json:"type"`
	Name       string             `json:"name"`
	StorageKey string             `json:"storageKey"`
	MimeType   string             `json:"mimeType"`
	SizeBytes  int64              `json:"sizeBytes"`
	UploadedBy string             `json:"uploadedBy"`
}

// AddDocument attaches document metadata to an asset.
func (s *Service) AddDocument(ctx context.Context, assetID string, in DocumentInput) (asset.Document, error) {
	if !in.Type.IsValid() {
		return asset.Document{}, errors.InvalidInput("", "Unknown document type")
	}
	if in.Name == "" || in.StorageKey == "" {
		return asset.Document{}, errors.InvalidInput("", "Document name and storageKey are required")
	}

	if _, err := s.getAsset(ctx, assetID); err != nil {
		return asset.Document{}, err
	}

	created, err := s.store.CreateDocument(ctx, asset.Document{
		AssetID:    assetID,
		Type:       in.Type,
		Name:       in.Name,
		StorageKey: in.StorageKey,
		MimeType:   in.MimeType,
		SizeBytes:  in.SizeBytes,
		UploadedBy: in.UploadedBy,
	})
	if err != nil {
		return asset.Document{}, errors.Internal("create document", err)
	}
	return created, nil
}

// ListDocuments returns an asset's document metadata.
func (s *Service) ListDocuments(ctx context.Context, assetID string) ([]asset.Document, error) {
	if _, err := s.getAsset(ctx, assetID); err != nil {
		return nil, err
	}
	documents, err := s.store.ListDocuments(ctx, assetID)
	if err != nil {
		return nil, errors.Internal("list documents", err)
	}
	return documents, nil
}

// DeleteDocument removes document metadata. Permitted only before
// tokenization succeeds.
func (s *Service) DeleteDocument(ctx context.Context, assetID, documentID string) error {
	a, err := s.getAsset(ctx, assetID)
	if err != nil {
		return err
	}
	switch a.TokenizationStatus {
	case asset.StatusDraft, asset.StatusPendingReview, asset.StatusFailed:
	default:
		return errors.InvalidStatus("", "Documents cannot be removed in status "+string(a.TokenizationStatus))
	}

	document, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("DOCUMENT_NOT_FOUND", "Document not found")
		}
		return errors.Internal("load document", err)
	}
	if document.AssetID != assetID {
		return errors.NotFound("DOCUMENT_NOT_FOUND", "Document not found")
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return errors.Internal("delete document", err)
	}
	return nil
}
