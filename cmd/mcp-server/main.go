// Package main starts the MCP server on stdio. Logs go to stderr; stdout
// carries the protocol stream.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/backend"
	"github.com/blast-search-server/internal/config"
	"github.com/blast-search-server/internal/database"
	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/history"
	"github.com/blast-search-server/internal/mcpserver"
	"github.com/blast-search-server/internal/registry"
	"github.com/blast-search-server/internal/service"
	"github.com/blast-search-server/pkg/ncbi"
)

func main() {
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
		log.Println("Shutdown signal received, gracefully shutting down MCP server...")
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

	server := mcpserver.NewServer(search, databases, profiles, historyStore, logger)

	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("MCP server stopped")
}

// openRegistryStore opens the configured registry store. Schema migrations
// are the HTTP server's job; a stdio process launched by an MCP client
// assumes the postgres schema already exists.
func openRegistryStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (registry.Store, *database.DB, error) {
	if cfg.Registry.Store == "postgres" {
		db, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return registry.NewPostgresStore(db.Pool, logger), db, nil
	}

	store, err := registry.NewSQLiteStore(cfg.Registry.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

func openHistoryStore(cfg *domain.Config) (history.Store, error) {
	if cfg.History.Store == "postgres" {
		return history.NewPostgresStoreFromURL(database.URL(cfg.Database))
	}
	return history.NewSQLiteStore(cfg.History.SQLitePath)
}
