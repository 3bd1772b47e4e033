// Package app wires the table store, snapshot refresher and HTTP server
// into one runnable service. The CLI and cmd/server share it.
package app

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"sda-calculator/api"
	"sda-calculator/core/engine"
	"sda-calculator/core/pricing"
	"sda-calculator/db"
	"sda-calculator/db/ingestion"
	"sda-calculator/internal/config"
	"sda-calculator/internal/errors"
	"sda-calculator/internal/scheduler"
)

// App is a fully wired calculator service
type App struct {
	Config    *config.Config
	Store     *db.GormStore
	Snapshots *engine.SnapshotHolder
	Engine    *engine.Engine
	Server    *api.Server
	Refresher *scheduler.Refresher

	logger *zap.Logger
}

// New opens the store, seeds empty tables when configured, loads the first
// snapshot and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Step 1: Engine configuration
	policy, err := pricing.ParseAmbiguityPolicy(cfg.Pricing.AmbiguityPolicy)
	if err != nil {
		return nil, errors.Config("invalid pricing.ambiguity_policy", err)
	}

	// Step 2: Store and schema
	store, err := OpenStore(ctx, cfg.Database, logger.Named("db"))
	if err != nil {
		return nil, err
	}

	// Step 3: Reference data
	if cfg.Pricing.SeedOnStart {
		if _, err := SeedIfEmpty(ctx, store, cfg.Pricing.SeedFile, logger.Named("ingestion")); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	// Step 4: First snapshot
	holder := engine.NewSnapshotHolder(nil)
	refresher := scheduler.NewRefresher(store, holder, scheduler.Config{
		Schedule:    cfg.Refresh.Schedule,
		HistoryDays: cfg.Pricing.HistoryDays,
	}, logger.Named("refresher"))
	if err := refresher.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	// Step 5: Engine and server
	calc := engine.NewEngine(holder, pricing.EngineConfig{Ambiguity: policy}, logger.Named("engine"))
	server := api.NewServer(api.Config{
		Version:         version,
		Addr:            cfg.Server.Addr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, calc, holder, store, logger.Named("api"))

	return &App{
		Config:    cfg,
		Store:     store,
		Snapshots: holder,
		Engine:    calc,
		Server:    server,
		Refresher: refresher,
		logger:    logger,
	}, nil
}

// Run serves HTTP until ctx is cancelled, refreshing the snapshot when enabled
func (a *App) Run(ctx context.Context) error {
	if a.Config.Refresh.Enabled {
		if err := a.Refresher.Start(); err != nil {
			return err
		}
		defer a.Refresher.Stop()
	}
	return a.Server.Run(ctx)
}

// Close releases the store
func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore connects to the configured database and migrates the schema
func OpenStore(ctx context.Context, cfg db.Config, logger *zap.Logger) (*db.GormStore, error) {
	if cfg.Driver == db.DriverSQLite && cfg.URL == "" && cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.Storage("create database directory", err)
		}
	}

	store, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// SeedIfEmpty loads reference data when no building types are stored.
// It returns a nil report when the tables were already seeded.
func SeedIfEmpty(ctx context.Context, store db.PricingStore, seedFile string, logger *zap.Logger) (*ingestion.Report, error) {
	status, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if status.Tables.BuildingTypes > 0 {
		return nil, nil
	}

	src, err := SeedSource(seedFile)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("tables empty, loading reference seed", zap.String("source", src.Name()))
	return ingestion.NewPipeline(store, logger).Run(ctx, src)
}

// SeedSource returns the seed at path, or the built-in reference seed
func SeedSource(path string) (*ingestion.SeedSource, error) {
	if path == "" {
		return ingestion.NewReferenceSeed(), nil
	}
	return ingestion.NewSeedFile(path)
}
