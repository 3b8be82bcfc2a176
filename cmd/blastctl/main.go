// Package main implements blastctl, a headless client that runs one search
// (or computes one sequence profile) against the locally configured engine
// and prints the result as text or JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/backend"
	"github.com/blast-search-server/internal/config"
	"github.com/blast-search-server/internal/database"
	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/history"
	"github.com/blast-search-server/internal/registry"
	"github.com/blast-search-server/internal/service"
	"github.com/blast-search-server/pkg/ncbi"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("blastctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	seq := fs.String("seq", "", "query sequence, bare or FASTA")
	file := fs.String("file", "", "read the query from a FASTA file")
	program := fs.String("program", "blastn", "blastn, blastp, blastx or tblastn")
	svc := fs.String("service", "local", "execution service: local or remote")
	db := fs.String("db", "", "database reference: registry id or name, or an NCBI database for -service remote")
	evalue := fs.Float64("evalue", 0, "e-value threshold (0 uses the default)")
	maxTargets := fs.Int("max-targets", 0, "maximum number of aligned targets (0 uses the default)")
	wordSize := fs.Int("word-size", 0, "word size (0 lets the program decide)")
	matrix := fs.String("matrix", "", "scoring matrix for protein programs")
	out := fs.String("out", "text", "output format: json or text")
	profile := fs.Bool("profile", false, "print the sequence composition profile instead of searching")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out != "json" && *out != "text" {
		return fmt.Errorf("unknown output format %q, expected json or text", *out)
	}

	rawSequence, err := readSequence(*seq, *file)
	if err != nil {
		return err
	}

	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)
	// Service logs would interleave with the report on stderr. Keep them
	// down to warnings unless the operator configured debug output.
	if cfg.Logging.Level != "debug" {
		logger.SetLevel(logrus.WarnLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	validator := service.NewSequenceValidator()

	if *profile {
		return runProfile(ctx, validator, rawSequence, *out, stdout, logger)
	}

	registryStore, pool, err := openRegistryStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	defer registryStore.Close()
	if pool != nil {
		defer pool.Close()
	}

	historyStore, err := openHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer historyStore.Close()

	cache, err := service.NewResultCache(cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("initializing result cache: %w", err)
	}

	builder := backend.NewDatabaseBuilder(cfg.Tools, logger)
	databases := registry.NewRegistry(registryStore, builder, cfg.Registry.DataDir, logger)

	search := service.NewOrchestrator(
		validator,
		databases,
		backend.NewLocalBackend(cfg.Tools, logger),
		ncbi.NewResilientClient(ncbi.NewClient(cfg.NCBI)),
		cache,
		historyStore,
		logger,
	)

	req := &domain.SearchRequest{
		BlastType:       domain.BlastType(*program),
		Service:         domain.ServiceType(*svc),
		Database:        *db,
		EvalueThreshold: *evalue,
		MaxTargets:      *maxTargets,
		WordSize:        *wordSize,
		Matrix:          *matrix,
	}

	progress := domain.ProgressFunc(func(stage domain.ProgressStage, detail string) {
		logger.WithFields(logrus.Fields{"stage": stage, "detail": detail}).Debug("Search progress")
	})

	result, err := search.Search(ctx, rawSequence, req, service.WithProgress(progress))
	if err != nil {
		return err
	}

	// A fallback result still renders and exits zero, but the caller gets
	// told on stderr that the hits are representative, not real.
	if result.Source == domain.SourceFallback {
		fmt.Fprintf(stderr, "warning: search failed (%s); showing representative fallback results\n",
			result.ErrorMessage)
	}

	if *out == "json" {
		return writeJSON(stdout, result)
	}
	renderResult(stdout, result)
	return nil
}

func runProfile(ctx context.Context, validator *service.SequenceValidatorService, rawSequence, out string, stdout io.Writer, logger *logrus.Logger) error {
	query, err := validator.Validate(rawSequence)
	if err != nil {
		return err
	}

	profiles, err := service.NewProfileService(1, logger)
	if err != nil {
		return err
	}

	prof, err := profiles.Profile(ctx, query)
	if err != nil {
		return err
	}

	if out == "json" {
		return writeJSON(stdout, prof)
	}
	renderProfile(stdout, prof)
	return nil
}

// readSequence resolves the query from exactly one of the two input flags.
func readSequence(seq, file string) (string, error) {
	switch {
	case seq != "" && file != "":
		return "", fmt.Errorf("-seq and -file are mutually exclusive")
	case seq != "":
		return seq, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("a query is required, pass -seq or -file")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

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
