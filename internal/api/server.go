// Package api exposes the search orchestrator, database registry, history
// store and profile service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/history"
	"github.com/blast-search-server/internal/middleware"
	"github.com/blast-search-server/internal/service"
)

const (
	serverVersion   = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

// SearchService runs sequence searches. Satisfied by service.Orchestrator.
type SearchService interface {
	Search(ctx context.Context, rawSequence string, req *domain.SearchRequest, opts ...service.SearchOption) (*domain.SearchResult, error)
}

// DatabaseManager manages local search databases. Satisfied by
// registry.Registry.
type DatabaseManager interface {
	Create(ctx context.Context, name, sourcePath string, mol domain.MolType) (*domain.DatabaseRecord, error)
	List(ctx context.Context) ([]*domain.DatabaseRecord, error)
	Update(ctx context.Context, ref string) (*domain.DatabaseRecord, error)
	Delete(ctx context.Context, ref string) error
}

// ProfileProvider computes sequence composition profiles.
type ProfileProvider interface {
	Profile(ctx context.Context, query domain.SequenceQuery) (*domain.SequenceProfile, error)
}

// Server represents the HTTP server.
type Server struct {
	configManager domain.ConfigManager
	search        SearchService
	databases     DatabaseManager
	profiles      ProfileProvider
	history       history.Store
	validator     *service.SequenceValidatorService
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance.
func NewServer(
	configManager domain.ConfigManager,
	search SearchService,
	databases DatabaseManager,
	profiles ProfileProvider,
	historyStore history.Store,
	logger *logrus.Logger,
) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())

	server := &Server{
		configManager: configManager,
		search:        search,
		databases:     databases,
		profiles:      profiles,
		history:       historyStore,
		validator:     service.NewSequenceValidator(),
		logger:        logger,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router returns the configured gin engine.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// drains in-flight requests before returning.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/search", s.handleSearch)
		v1.GET("/search/ws", s.handleSearchWS)

		v1.GET("/databases", s.handleListDatabases)
		v1.POST("/databases", s.handleCreateDatabase)
		v1.DELETE("/databases/:id", s.handleDeleteDatabase)
		v1.POST("/databases/:id/rebuild", s.handleRebuildDatabase)

		v1.GET("/history", s.handleHistory)

		v1.POST("/sequence/profile", s.handleProfile)
	}
}

// handleHealth reports liveness plus the health of both stores.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := gin.H{}

	if records, err := s.databases.List(ctx); err != nil {
		status = "degraded"
		checks["registry"] = err.Error()
	} else {
		checks["registry"] = fmt.Sprintf("ok (%d databases)", len(records))
	}

	if count, err := s.history.Count(ctx); err != nil {
		status = "degraded"
		checks["history"] = err.Error()
	} else {
		checks["history"] = fmt.Sprintf("ok (%d records)", count)
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   serverVersion,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
