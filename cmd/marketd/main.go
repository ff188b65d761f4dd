// marketd is the asset marketplace control plane.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app"
	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/memory"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage/postgres"
	"github.com/Clearfield-Labs/asset_layer/internal/config"
	"github.com/Clearfield-Labs/asset_layer/internal/database"
	"github.com/Clearfield-Labs/asset_layer/internal/platform/migrations"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/marketd.yaml", "path to the configuration file")
	flag.Parse()

	// .env is optional; environment overrides still apply without it.
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.NewDefault("marketd").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "marketd",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer cleanup()

	application, err := app.New(app.Options{
		Config:        cfg,
		Store:         store,
		Collaborators: buildCollaborators(cfg),
		Log:           log,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to assemble application")
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start background services")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      application.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errs:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("background services shutdown")
	}
	log.Info("marketd stopped")
}

// openStore selects Postgres when a database URL is configured, the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Info("no database configured, using in-memory storage")
		return memory.New(), func() {}, nil
	}

	db, err := database.Open(ctx, database.Options{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("database ready")
	return postgres.New(db), func() { _ = db.Close() }, nil
}

// buildCollaborators binds each collaborator to its HTTP adapter when an
// endpoint is configured, the shared mock otherwise.
func buildCollaborators(cfg config.Config) collab.Set {
	set, _ := collab.NewMockSet()
	timeout := cfg.Collaborator.Timeout.Duration

	if cfg.Tokenization.Enabled && cfg.Tokenization.Endpoint != "" {
		set.Tokenization = collab.NewHTTPTokenization(collab.ClientConfig{
			Endpoint: cfg.Tokenization.Endpoint,
			APIKey:   cfg.Tokenization.APIKey,
			Timeout:  timeout,
		})
	}
	if cfg.Escrow.Endpoint != "" {
		set.Escrow = collab.NewHTTPEscrow(collab.ClientConfig{
			Endpoint: cfg.Escrow.Endpoint,
			APIKey:   cfg.Escrow.APIKey,
			Timeout:  timeout,
		})
	}
	if cfg.Payment.Endpoint != "" {
		set.Payment = collab.NewHTTPPayment(collab.ClientConfig{
			Endpoint: cfg.Payment.Endpoint,
			APIKey:   cfg.Payment.APIKey,
			Timeout:  timeout,
		})
	}
	if cfg.Transfer.Endpoint != "" {
		set.Transfer = collab.NewHTTPTransfer(collab.ClientConfig{
			Endpoint: cfg.Transfer.Endpoint,
			APIKey:   cfg.Transfer.APIKey,
			Timeout:  timeout,
		})
	}
	if cfg.KYC.Endpoint != "" {
		set.KYC = collab.NewHTTPKYC(collab.ClientConfig{
			Endpoint: cfg.KYC.Endpoint,
			APIKey:   cfg.KYC.APIKey,
			Timeout:  timeout,
		})
	}
	return set
}
