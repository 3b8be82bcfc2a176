package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/pkg/blastout"
)

// DatabaseResolver resolves a local database reference to its ready record.
// Satisfied by the registry.
type DatabaseResolver interface {
	ResolveReady(ctx context.Context, ref string) (*domain.DatabaseRecord, error)
}

// HistoryWriter persists one search record. Satisfied by the history stores.
type HistoryWriter interface {
	Save(ctx context.Context, record *domain.SearchRecord) error
}

// SearchOption tunes a single Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	progress domain.ProgressObserver
}

// WithProgress attaches an observer notified as the search advances through
// its pipeline stages.
func WithProgress(obs domain.ProgressObserver) SearchOption {
	return func(o *searchOptions) { o.progress = obs }
}

// Orchestrator drives one search end to end: validate, resolve, execute,
// parse. Failures before execution are returned to the caller; failures at
// or after execution, cancellation excepted, are absorbed into a fallback
// result so the caller always gets something presentable back. At most one
// search is in flight at a time; a concurrent call is rejected, not queued.
type Orchestrator struct {
	validator domain.SequenceValidator
	resolver  DatabaseResolver
	local     domain.ExecutionBackend
	remote    domain.ExecutionBackend
	fallback  *FallbackGenerator
	cache     *ResultCache
	history   HistoryWriter
	logger    *logrus.Logger
	inFlight  atomic.Bool
}

// NewOrchestrator wires the search pipeline. cache and history may be nil,
// which disables result caching and history recording respectively.
func NewOrchestrator(
	validator domain.SequenceValidator,
	resolver DatabaseResolver,
	local domain.ExecutionBackend,
	remote domain.ExecutionBackend,
	cache *ResultCache,
	history HistoryWriter,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		validator: validator,
		resolver:  resolver,
		local:     local,
		remote:    remote,
		fallback:  NewFallbackGenerator(),
		cache:     cache,
		history:   history,
		logger:    logger,
	}
}

// Search runs one search. The raw sequence may be bare or FASTA-formatted;
// req.Database is a registry id or name for the local service and an NCBI
// database name for the remote one.
func (o *Orchestrator) Search(ctx context.Context, rawSequence string, req *domain.SearchRequest, opts ...SearchOption) (*domain.SearchResult, error) {
	var options searchOptions
	for _, opt := range opts {
		opt(&options)
	}
	emit := func(stage domain.ProgressStage, detail string) {
		if options.progress != nil {
			options.progress.OnProgress(stage, detail)
		}
	}

	if req == nil {
		return nil, domain.NewValidationError("request", "missing search request")
	}
	request := *req
	request.ApplyDefaults()

	emit(domain.StageValidating, "")
	query, err := o.validator.Validate(rawSequence)
	if err != nil {
		return nil, err
	}
	if err := o.validator.CheckCompatibility(request.BlastType, query.Type); err != nil {
		return nil, err
	}
	if !request.Service.IsValid() {
		return nil, domain.NewValidationError("service", fmt.Sprintf("unknown service %q", request.Service))
	}
	if request.Database == "" {
		return nil, domain.NewValidationError("database", "database reference is required")
	}

	backend := o.remote
	database := request.Database
	var dbRecord *domain.DatabaseRecord
	if request.Service == domain.ServiceLocal {
		emit(domain.StageResolving, request.Database)
		record, err := o.resolver.ResolveReady(ctx, request.Database)
		if err != nil {
			return nil, err
		}
		dbRecord = record
		database = record.BasePath
		backend = o.local
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrSearchInProgress
	}
	defer o.inFlight.Store(false)

	searchID := uuid.New().String()
	log := o.logger.WithFields(logrus.Fields{
		"search_id": searchID,
		"program":   request.BlastType,
		"service":   request.Service,
		"database":  request.Database,
		"query_len": query.Length,
	})
	log.Info("Starting sequence search")

	var cacheKey string
	if o.cache != nil {
		cacheKey = o.cache.Key(query, &request)
		if cached, ok := o.cache.Get(ctx, cacheKey); ok {
			log.Info("Serving search result from cache")
			emit(domain.StageDone, fmt.Sprintf("%d hits (cached)", len(cached.Hits)))
			return cached, nil
		}
	}

	if options.progress != nil {
		ctx = domain.ContextWithObserver(ctx, options.progress)
	}

	started := time.Now()
	result, execErr := o.runBackend(ctx, backend, &request, query, database, dbRecord, emit)
	if execErr != nil {
		if errors.Is(execErr, domain.ErrCancelled) ||
			errors.Is(execErr, context.Canceled) ||
			errors.Is(execErr, context.DeadlineExceeded) {
			return nil, execErr
		}
		log.WithError(execErr).Warn("Search failed, generating fallback result")
		emit(domain.StageFallback, execErr.Error())
		result = o.fallback.Generate(query, &request, execErr)
	}

	result.SearchID = searchID
	result.Statistics.SearchTime = time.Since(started)

	emit(domain.StageDone, fmt.Sprintf("%d hits", len(result.Hits)))
	log.WithFields(logrus.Fields{
		"hits":    len(result.Hits),
		"source":  result.Source,
		"elapsed": result.Statistics.SearchTime,
	}).Info("Search finished")

	if o.cache != nil {
		o.cache.Put(ctx, cacheKey, result)
	}
	o.recordHistory(ctx, result, log)

	return result, nil
}

// runBackend executes the search and parses the raw output into a real
// result. Any error it returns is a candidate for fallback absorption.
func (o *Orchestrator) runBackend(
	ctx context.Context,
	backend domain.ExecutionBackend,
	req *domain.SearchRequest,
	query domain.SequenceQuery,
	database string,
	dbRecord *domain.DatabaseRecord,
	emit func(domain.ProgressStage, string),
) (*domain.SearchResult, error) {
	raw, err := backend.Execute(ctx, req, query, database)
	if err != nil {
		return nil, err
	}

	emit(domain.StageParsing, string(raw.Format))

	var hits []domain.Hit
	var stats domain.Statistics
	switch raw.Format {
	case domain.FormatTabular:
		hits, err = blastout.ParseTabular(raw.Data, query.Length, query.Type.IsProtein())
		if err != nil {
			return nil, err
		}
		if dbRecord != nil {
			stats.DatabaseSequences = dbRecord.SequenceCount
			stats.DatabaseLetters = dbRecord.LetterCount
		}
	case domain.FormatXML:
		parsed, err := blastout.ParseXML(raw.Data)
		if err != nil {
			return nil, err
		}
		hits = parsed.Hits
		stats = parsed.Statistics
	default:
		return nil, &domain.ParseError{Format: raw.Format, Err: fmt.Errorf("unknown output format")}
	}

	source := domain.SourceRemote
	if req.Service == domain.ServiceLocal {
		source = domain.SourceLocal
	}

	return &domain.SearchResult{
		QueryInfo: domain.QueryInfo{
			Preview: query.Preview(60),
			Length:  query.Length,
			Type:    query.Type,
		},
		Parameters:    *req,
		Hits:          hits,
		Statistics:    stats,
		Source:        source,
		IsRealResults: true,
		RawOutput:     string(raw.Data),
		CreatedAt:     time.Now(),
	}, nil
}

// recordHistory writes the search record. Best-effort: a history failure
// never fails a search.
func (o *Orchestrator) recordHistory(ctx context.Context, result *domain.SearchResult, log *logrus.Entry) {
	if o.history == nil {
		return
	}

	record := &domain.SearchRecord{
		SearchID:     result.SearchID,
		BlastType:    result.Parameters.BlastType,
		Service:      result.Parameters.Service,
		Database:     result.Parameters.Database,
		QueryPreview: result.QueryInfo.Preview,
		QueryLength:  result.QueryInfo.Length,
		QueryType:    result.QueryInfo.Type,
		HitCount:     len(result.Hits),
		IsReal:       result.IsRealResults,
		ErrorMessage: result.ErrorMessage,
		Source:       result.Source,
		Duration:     result.Statistics.SearchTime,
		CreatedAt:    result.CreatedAt,
	}
	if len(result.Hits) > 0 {
		record.BestEvalue = result.Hits[0].Evalue
		record.BestBitScore = result.Hits[0].BitScore
	}

	if err := o.history.Save(ctx, record); err != nil {
		log.WithError(err).Warn("Failed to record search history")
	}
}
