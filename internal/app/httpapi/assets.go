package httpapi

import (
	"net/http"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/assets"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// assetManagerRoles may create and mutate assets.
var assetManagerRoles = []string{
	string(identity.RoleBankAdmin),
	string(identity.RolePlatformAdmin),
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in assets.CreateInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	a, err := s.assets.Create(r.Context(), in)
	s.audit.Record(r.Context(), "asset.create", "asset", a.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	paged, err := s.assets.List(r.Context(), assetFilter(r), parsePage(r), parseSort(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, paged)
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	paged, err := s.assets.Browse(r.Context(), assetFilter(r), parsePage(r), parseSort(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, paged)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.assets.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in assets.UpdateInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.Update(r.Context(), id, in)
	s.audit.Record(r.Context(), "asset.update", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	err := s.assets.Delete(r.Context(), id)
	s.audit.Record(r.Context(), "asset.delete", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleAssetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.assets.Stats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.SubmitForReview(r.Context(), id)
	s.audit.Record(r.Context(), "asset.submit-review", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, string(identity.RolePlatformAdmin)); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.ApproveForTokenization(r.Context(), id)
	s.audit.Record(r.Context(), "asset.approve", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in assets.TokenizeInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.Tokenize(r.Context(), id, in)
	s.audit.Record(r.Context(), "asset.tokenize", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleListOnMarketplace(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.ListOnMarketplace(r.Context(), id)
	s.audit.Record(r.Context(), "asset.list", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleDelist(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.assets.DelistFromMarketplace(r.Context(), id)
	s.audit.Record(r.Context(), "asset.delist", "asset", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in assets.DocumentInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	doc, err := s.assets.AddDocument(r.Context(), id, in)
	s.audit.Record(r.Context(), "asset.add-document", "document", doc.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.assets.ListDocuments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	vars := mux.Vars(r)
	err := s.assets.DeleteDocument(r.Context(), vars["id"], vars["docId"])
	s.audit.Record(r.Context(), "asset.delete-document", "document", vars["docId"], err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": vars["docId"]})
}

// assetFilter reads the list/browse query parameters.
func assetFilter(r *http.Request) asset.Filter {
	q := r.URL.Query()
	f := asset.Filter{
		BankID:             q.Get("bankId"),
		AssetType:          asset.Type(q.Get("assetType")),
		TokenizationStatus: asset.TokenizationStatus(q.Get("status")),
		ListingStatus:      asset.ListingStatus(q.Get("listingStatus")),
		Search:             q.Get("search"),
	}
	if v, err := decimal.NewFromString(q.Get("minValue")); err == nil {
		f.MinValue = &v
	}
	if v, err := decimal.NewFromString(q.Get("maxValue")); err == nil {
		f.MaxValue = &v
	}
	return f
}
