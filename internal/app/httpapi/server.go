// Package httpapi exposes the marketplace engines over HTTP: a mux router,
// JSON envelopes, the middleware chain, the operation audit trail and the
// auction WebSocket stream.
package httpapi

import (
	"net/http"

	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/assets"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/auctions"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/investors"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/trading"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/config"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/Clearfield-Labs/asset_layer/internal/middleware"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/gorilla/mux"
)

// Server holds the engines behind the HTTP surface.
type Server struct {
	assets    *assets.Service
	trading   *trading.Engine
	auctions  *auctions.Engine
	investors *investors.Service
	store     storage.Store
	audit     *Auditor
	log       *logger.Logger
}

// Options carries the server's dependencies.
type Options struct {
	Assets    *assets.Service
	Trading   *trading.Engine
	Auctions  *auctions.Engine
	Investors *investors.Service
	Store     storage.Store
	Audit     *Auditor
	Log       *logger.Logger
}

// NewServer creates the HTTP surface.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	audit := opts.Audit
	if audit == nil {
		audit, _ = NewAuditor("", log)
	}
	return &Server{
		assets:    opts.Assets,
		trading:   opts.Trading,
		auctions:  opts.Auctions,
		investors: opts.Investors,
		store:     opts.Store,
		audit:     audit,
		log:       log,
	}
}

// Router builds the full route table wrapped in the middleware chain.
func (s *Server) Router(cfg config.Config) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Assets.
	api.HandleFunc("/assets", s.handleCreateAsset).Methods(http.MethodPost)
	api.HandleFunc("/assets", s.handleListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", s.handleGetAsset).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", s.handleUpdateAsset).Methods(http.MethodPatch)
	api.HandleFunc("/assets/{id}", s.handleDeleteAsset).Methods(http.MethodDelete)
	api.HandleFunc("/assets/{id}/stats", s.handleAssetStats).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}/submit-review", s.handleSubmitReview).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/tokenize", s.handleTokenize).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/list", s.handleListOnMarketplace).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/delist", s.handleDelist).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/documents", s.handleAddDocument).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}/documents", s.handleListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}/documents/{docId}", s.handleDeleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/marketplace/assets", s.handleBrowse).Methods(http.MethodGet)

	// Transactions.
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/create-escrow", s.handleCreateEscrow).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/confirm-payment", s.handleConfirmPayment).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/transfer-tokens", s.handleTransferTokens).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/cancel", s.handleCancelTransaction).Methods(http.MethodPost)

	// Users, profiles, banks, portfolio.
	api.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPatch)
	api.HandleFunc("/users/{id}/profile", s.handleUpsertProfile).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/kyc/sync", s.handleSyncKYC).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/transactions/stats", s.handleUserStats).Methods(http.MethodGet)
	api.HandleFunc("/banks", s.handleCreateBank).Methods(http.MethodPost)
	api.HandleFunc("/banks", s.handleListBanks).Methods(http.MethodGet)
	api.HandleFunc("/banks/{id}", s.handleGetBank).Methods(http.MethodGet)

	// Auctions.
	api.HandleFunc("/auctions", s.handleCreateAuction).Methods(http.MethodPost)
	api.HandleFunc("/auctions", s.handleListAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}", s.handleGetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bid", s.handlePlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/bids", s.handleBidHistory).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bids/{bidId}", s.handleCancelBid).Methods(http.MethodDelete)
	api.HandleFunc("/auctions/{id}/settle", s.handleSettle).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/cancel", s.handleCancelAuction).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/extend", s.handleExtend).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/stream", s.handleStream).Methods(http.MethodGet)

	// Audit.
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)

	r.Use(middleware.Tracing(s.log))
	r.Use(middleware.Metrics())
	r.Use(middleware.NewCORS(cfg.CORS.AllowedOrigins).Handler)
	r.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, s.log).Handler)
	r.Use(middleware.ActingUser(s.store))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := parsePage(r).Size
	respond(w, http.StatusOK, s.audit.Recent(limit))
}

// requireRole rejects the request unless the acting user holds one of the
// given roles.
func requireRole(r *http.Request, roles ...string) error {
	actual := logging.GetRole(r.Context())
	for _, role := range roles {
		if actual == role {
			return nil
		}
	}
	return errors.Forbidden("Insufficient role for this operation")
}
