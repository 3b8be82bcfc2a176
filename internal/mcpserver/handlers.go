package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/blast-search-server/internal/domain"
)

const defaultHistoryLimit = 20

// blastSearchParams defines parameters for the blast_search tool.
type blastSearchParams struct {
	Sequence        string  `json:"sequence"`
	BlastType       string  `json:"blast_type"`
	Service         string  `json:"service,omitempty"`
	Database        string  `json:"database"`
	EvalueThreshold float64 `json:"evalue_threshold,omitempty"`
	MaxTargets      int     `json:"max_targets,omitempty"`
	WordSize        int     `json:"word_size,omitempty"`
	Matrix          string  `json:"matrix,omitempty"`
}

// createDatabaseParams defines parameters for the create_database tool.
type createDatabaseParams struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	MolType    string `json:"mol_type"`
}

// sequenceProfileParams defines parameters for the sequence_profile tool.
type sequenceProfileParams struct {
	Sequence string `json:"sequence"`
}

// searchHistoryParams defines parameters for the search_history tool.
type searchHistoryParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (s *Server) handleBlastSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", "blast_search").Info("Tool invoked")

	var params blastSearchParams
	args, _ := req.Params.Arguments.(json.RawMessage)
	if err := json.Unmarshal(args, &params); err != nil {
		return s.errorResult("Invalid parameters", err), nil
	}

	// Absent service means local, matching the CLI default.
	if params.Service == "" {
		params.Service = string(domain.ServiceLocal)
	}

	searchReq := &domain.SearchRequest{
		BlastType:       domain.BlastType(params.BlastType),
		Service:         domain.ServiceType(params.Service),
		Database:        params.Database,
		EvalueThreshold: params.EvalueThreshold,
		MaxTargets:      params.MaxTargets,
		WordSize:        params.WordSize,
		Matrix:          params.Matrix,
	}

	result, err := s.search.Search(ctx, params.Sequence, searchReq)
	if err != nil {
		return s.errorResult("Search failed", err), nil
	}

	return s.jsonResult(result)
}

func (s *Server) handleListDatabases(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", "list_databases").Info("Tool invoked")

	records, err := s.databases.List(ctx)
	if err != nil {
		return s.errorResult("Failed to list databases", err), nil
	}

	return s.jsonResult(map[string]any{
		"databases": records,
		"count":     len(records),
	})
}

func (s *Server) handleCreateDatabase(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", "create_database").Info("Tool invoked")

	var params createDatabaseParams
	args, _ := req.Params.Arguments.(json.RawMessage)
	if err := json.Unmarshal(args, &params); err != nil {
		return s.errorResult("Invalid parameters", err), nil
	}

	record, err := s.databases.Create(ctx, params.Name, params.SourcePath, domain.MolType(params.MolType))
	if err != nil {
		return s.errorResult("Failed to create database", err), nil
	}

	return s.jsonResult(record)
}

func (s *Server) handleSequenceProfile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", "sequence_profile").Info("Tool invoked")

	var params sequenceProfileParams
	args, _ := req.Params.Arguments.(json.RawMessage)
	if err := json.Unmarshal(args, &params); err != nil {
		return s.errorResult("Invalid parameters", err), nil
	}

	query, err := s.validator.Validate(params.Sequence)
	if err != nil {
		return s.errorResult("Invalid sequence", err), nil
	}

	profile, err := s.profiles.Profile(ctx, query)
	if err != nil {
		return s.errorResult("Failed to compute profile", err), nil
	}

	return s.jsonResult(profile)
}

func (s *Server) handleSearchHistory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", "search_history").Info("Tool invoked")

	var params searchHistoryParams
	args, _ := req.Params.Arguments.(json.RawMessage)
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return s.errorResult("Invalid parameters", err), nil
		}
	}
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	records, err := s.history.List(ctx, params.Limit, params.Offset)
	if err != nil {
		return s.errorResult("Failed to list history", err), nil
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return s.errorResult("Failed to count history", err), nil
	}

	return s.jsonResult(map[string]any{
		"records": records,
		"count":   total,
		"limit":   params.Limit,
		"offset":  params.Offset,
	})
}

// jsonResult renders a value as indented JSON in a text content block.
func (s *Server) jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult reports a tool-level failure to the client without failing
// the protocol call.
func (s *Server) errorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
