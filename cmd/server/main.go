package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/api"
	"github.com/blast-search-server/internal/backend"
	"github.com/blast-search-server/internal/config"
	"github.com/blast-search-server/internal/database"
	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/history"
	"github.com/blast-search-server/internal/registry"
	"github.com/blast-search-server/internal/service"
	"github.com/blast-search-server/internal/setup"
	"github.com/blast-search-server/pkg/ncbi"
)

func main() {
	// The setup subcommand runs before configuration loads so it can create
	// the config file and data tree a fresh host is missing.
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdout).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	registryStore, db, err := openRegistryStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open registry store: %v", err)
	}
	defer registryStore.Close()
	if db != nil {
		defer db.Close()
	}

	historyStore, err := openHistoryStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer historyStore.Close()

	cache, err := service.NewResultCache(cfg.Cache, logger)
	if err != nil {
		log.Fatalf("Failed to initialize result cache: %v", err)
	}

	profiles, err := service.NewProfileService(cfg.Cache.MemorySize, logger)
	if err != nil {
		log.Fatalf("Failed to initialize profile service: %v", err)
	}

	builder := backend.NewDatabaseBuilder(cfg.Tools, logger)
	databases := registry.NewRegistry(registryStore, builder, cfg.Registry.DataDir, logger)

	search := service.NewOrchestrator(
		service.NewSequenceValidator(),
		databases,
		backend.NewLocalBackend(cfg.Tools, logger),
		ncbi.NewResilientClient(ncbi.NewClient(cfg.NCBI)),
		cache,
		historyStore,
		logger,
	)

	server := api.NewServer(configManager, search, databases, profiles, historyStore, logger)

	log.Printf("Starting BLAST search server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	log.Println("Server stopped")
}

// openRegistryStore opens the configured registry store. For postgres it
// also establishes the shared pool and applies pending migrations; the
// returned *database.DB is nil for sqlite.
func openRegistryStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (registry.Store, *database.DB, error) {
	if cfg.Registry.Store == "postgres" {
		db, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}

		runner, err := database.NewMigrationRunner(database.URL(cfg.Database), cfg.Database.MigrationsDir, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := runner.Up(ctx); err != nil {
			runner.Close()
			db.Close()
			return nil, nil, err
		}
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Could not close migration runner")
		}

		return registry.NewPostgresStore(db.Pool, logger), db, nil
	}

	store, err := registry.NewSQLiteStore(cfg.Registry.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

// openHistoryStore opens the configured history store. The postgres variant
// uses its own database/sql connection rather than the pgx pool.
func openHistoryStore(cfg *domain.Config) (history.Store, error) {
	if cfg.History.Store == "postgres" {
		return history.NewPostgresStoreFromURL(database.URL(cfg.Database))
	}
	return history.NewSQLiteStore(cfg.History.SQLitePath)
}
