// Package mcpserver exposes the search engine to MCP clients over stdio.
// Tools call the same orchestrator, registry, history and profile services
// as the HTTP surface.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/history"
	"github.com/blast-search-server/internal/service"
)

const serverVersion = "v1.0.0"

// Searcher runs sequence searches. Satisfied by service.Orchestrator.
type Searcher interface {
	Search(ctx context.Context, rawSequence string, req *domain.SearchRequest, opts ...service.SearchOption) (*domain.SearchResult, error)
}

// DatabaseManager manages local search databases. Satisfied by
// registry.Registry.
type DatabaseManager interface {
	Create(ctx context.Context, name, sourcePath string, mol domain.MolType) (*domain.DatabaseRecord, error)
	List(ctx context.Context) ([]*domain.DatabaseRecord, error)
}

// ProfileProvider computes sequence composition profiles.
type ProfileProvider interface {
	Profile(ctx context.Context, query domain.SequenceQuery) (*domain.SequenceProfile, error)
}

// Server represents the MCP server implementation.
type Server struct {
	search    Searcher
	databases DatabaseManager
	profiles  ProfileProvider
	history   history.Store
	validator *service.SequenceValidatorService
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance and registers all tools.
func NewServer(
	search Searcher,
	databases DatabaseManager,
	profiles ProfileProvider,
	historyStore history.Store,
	logger *logrus.Logger,
) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	serverInfo := &mcp.Implementation{
		Name:    "blast-search-server",
		Version: serverVersion,
	}

	server := &Server{
		search:    search,
		databases: databases,
		profiles:  profiles,
		history:   historyStore,
		validator: service.NewSequenceValidator(),
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}

	server.registerTools()

	return server
}

// Start runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the search tools with the MCP SDK.
func (s *Server) registerTools() {
	tools := []struct {
		def     *mcp.Tool
		handler mcp.ToolHandler
	}{
		{
			def: &mcp.Tool{
				Name: "blast_search",
				Description: "Run a BLAST search against a local database or the NCBI remote " +
					"service. Accepts a bare or FASTA-formatted sequence and returns ranked hits " +
					"with alignments and statistics.",
			},
			handler: s.handleBlastSearch,
		},
		{
			def: &mcp.Tool{
				Name:        "list_databases",
				Description: "List the local search databases registered on this server.",
			},
			handler: s.handleListDatabases,
		},
		{
			def: &mcp.Tool{
				Name: "create_database",
				Description: "Build a new local search database from a FASTA file on the " +
					"server filesystem.",
			},
			handler: s.handleCreateDatabase,
		},
		{
			def: &mcp.Tool{
				Name: "sequence_profile",
				Description: "Compute a composition profile for a sequence: residue counts, " +
					"physicochemical class fractions and expected E. coli codon usage.",
			},
			handler: s.handleSequenceProfile,
		},
		{
			def: &mcp.Tool{
				Name:        "search_history",
				Description: "List recent searches recorded by this server, newest first.",
			},
			handler: s.handleSearchHistory,
		},
	}

	for _, tool := range tools {
		s.mcpServer.AddTool(tool.def, tool.handler)
		s.logger.WithField("tool_name", tool.def.Name).Debug("Registered MCP tool")
	}

	s.logger.WithField("tool_count", len(tools)).Info("Registered MCP tools")
}
