// Package app assembles the marketplace: storage, collaborators, engines,
// background services and the HTTP surface.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/httpapi"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/assets"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/auctions"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/investors"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/trading"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/memory"
	"github.com/Clearfield-Labs/asset_layer/internal/app/system"
	"github.com/Clearfield-Labs/asset_layer/internal/config"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
)

// Options carries the application's externally supplied dependencies. Zero
// values select in-memory storage and mock collaborators.
type Options struct {
	Config        config.Config
	Store         storage.Store
	Collaborators collab.Set
	Log           *logger.Logger
}

// Application is the assembled marketplace.
type Application struct {
	Assets    *assets.Service
	Trading   *trading.Engine
	Auctions  *auctions.Engine
	Investors *investors.Service
	Store     storage.Store
	Audit     *httpapi.Auditor

	cfg     config.Config
	manager *system.Manager
	server  *httpapi.Server
	log     *logger.Logger
}

// New wires the application together.
func New(opts Options) (*Application, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}
	store := opts.Store
	if store == nil {
		store = memory.New()
	}
	collaborators := opts.Collaborators
	if collaborators == (collab.Set{}) {
		collaborators, _ = collab.NewMockSet()
	}
	cfg := opts.Config

	hub := auctions.NewHub()
	assetsSvc := assets.New(store, collaborators.Tokenization, log.WithField("component", "assets"))
	tradingEng := trading.NewEngine(store, collaborators.Escrow, collaborators.Payment, collaborators.Transfer,
		log.WithField("component", "trading"))
	auctionEng := auctions.NewEngine(store, collaborators.Escrow, collaborators.Payment, collaborators.Transfer,
		hub, auctions.Config{
			BidIncrementPct: cfg.Auction.BidIncrementPct,
			MinDuration:     time.Duration(cfg.Auction.MinDurationSeconds) * time.Second,
			MaxDuration:     time.Duration(cfg.Auction.MaxDurationSeconds) * time.Second,
		}, log.WithField("component", "auctions"))
	investorsSvc := investors.New(store, collaborators.KYC, log.WithField("component", "investors"))

	audit, err := httpapi.NewAuditor(cfg.Audit.File, log.WithField("component", "audit"))
	if err != nil {
		return nil, err
	}

	manager := system.NewManager()
	clock := auctions.NewClock(store, hub, cfg.Scheduler.TickInterval.Duration,
		log.WithField("component", "auction-clock"))
	if err := manager.Register(clock); err != nil {
		return nil, err
	}
	if cfg.Reconciler.Enabled {
		reconciler := trading.NewReconciler(store, tradingEng,
			cfg.Reconciler.Interval.Duration, cfg.Reconciler.StuckAfter.Duration,
			log.WithField("component", "reconciler"))
		if err := manager.Register(reconciler); err != nil {
			return nil, err
		}
	}

	server := httpapi.NewServer(httpapi.Options{
		Assets:    assetsSvc,
		Trading:   tradingEng,
		Auctions:  auctionEng,
		Investors: investorsSvc,
		Store:     store,
		Audit:     audit,
		Log:       log.WithField("component", "httpapi"),
	})

	return &Application{
		Assets:    assetsSvc,
		Trading:   tradingEng,
		Auctions:  auctionEng,
		Investors: investorsSvc,
		Store:     store,
		Audit:     audit,
		cfg:       cfg,
		manager:   manager,
		server:    server,
		log:       log,
	}, nil
}

// Handler returns the HTTP surface.
func (a *Application) Handler() http.Handler {
	return a.server.Router(a.cfg)
}

// Start launches the background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop halts the background services and closes the audit sink.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if closeErr := a.Audit.Close(); err == nil {
		err = closeErr
	}
	return err
}
