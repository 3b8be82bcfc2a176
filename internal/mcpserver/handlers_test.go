package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/service"
)

const testSequence = "ATGGCGATTACCGGTAAAGCTTGCAGGTTCAAGGATCCGA"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type stubResolver struct {
	record *domain.DatabaseRecord
	err    error
}

func (s stubResolver) ResolveReady(ctx context.Context, ref string) (*domain.DatabaseRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

type stubBackend struct {
	output *domain.RawOutput
	err    error
}

func (s stubBackend) Execute(ctx context.Context, req *domain.SearchRequest, query domain.SequenceQuery, database string) (*domain.RawOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

type fakeDatabases struct {
	records   []*domain.DatabaseRecord
	created   *domain.DatabaseRecord
	createErr error

	gotName string
	gotPath string
	gotMol  domain.MolType
}

func (f *fakeDatabases) Create(ctx context.Context, name, sourcePath string, mol domain.MolType) (*domain.DatabaseRecord, error) {
	f.gotName, f.gotPath, f.gotMol = name, sourcePath, mol
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeDatabases) List(ctx context.Context) ([]*domain.DatabaseRecord, error) {
	return f.records, nil
}

type fakeHistory struct {
	records  []*domain.SearchRecord
	gotLimit int
}

func (f *fakeHistory) Save(ctx context.Context, record *domain.SearchRecord) error { return nil }

func (f *fakeHistory) Get(ctx context.Context, searchID string) (*domain.SearchRecord, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeHistory) List(ctx context.Context, limit, offset int) ([]*domain.SearchRecord, error) {
	f.gotLimit = limit
	return f.records, nil
}

func (f *fakeHistory) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeHistory) Delete(ctx context.Context, searchID string) error { return nil }

func (f *fakeHistory) ExportJSON(ctx context.Context, writer io.Writer) error { return nil }

func (f *fakeHistory) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeHistory) Close() error { return nil }

func readyRecord() *domain.DatabaseRecord {
	return &domain.DatabaseRecord{
		ID:            "11111111-2222-3333-4444-555555555555",
		Name:          "ecoli_k12",
		MolType:       domain.MolNucleotide,
		Status:        domain.StatusReady,
		BasePath:      "/data/databases/ecoli/db",
		SequenceCount: 2,
		LetterCount:   9000,
	}
}

func tabularOutput() *domain.RawOutput {
	line := "query1\tNC_000913.3\t100.000\t40\t0\t0\t1\t40\t101\t140\t1e-20\t74.1\n"
	return &domain.RawOutput{Data: []byte(line), Format: domain.FormatTabular}
}

func newTestMCPServer(t *testing.T) (*Server, *fakeDatabases, *fakeHistory) {
	t.Helper()

	logger := testLogger()
	backend := stubBackend{output: tabularOutput()}
	orchestrator := service.NewOrchestrator(
		service.NewSequenceValidator(), stubResolver{record: readyRecord()},
		backend, backend, nil, nil, logger)
	profiles, err := service.NewProfileService(8, logger)
	require.NoError(t, err)

	databases := &fakeDatabases{created: readyRecord()}
	historyStore := &fakeHistory{}

	server := NewServer(orchestrator, databases, profiles, historyStore, logger)
	return server, databases, historyStore
}

func toolCall(args string) *mcp.CallToolRequest {
	return &mcp.CallToolRequest{
		Params: &mcp.CallToolParams{Arguments: json.RawMessage(args)},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer(t *testing.T) {
	server, _, _ := newTestMCPServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.validator)
	assert.NotNil(t, server.logger)
}

func TestBlastSearchTool(t *testing.T) {
	server, _, _ := newTestMCPServer(t)

	result, err := server.handleBlastSearch(context.Background(), toolCall(
		`{"sequence": "`+testSequence+`", "blast_type": "blastn", "database": "ecoli_k12"}`))

	require.NoError(t, err)
	require.False(t, result.IsError)

	var searchResult domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &searchResult))
	assert.True(t, searchResult.IsRealResults)
	assert.Equal(t, domain.SourceLocal, searchResult.Source)
	require.Len(t, searchResult.Hits, 1)
	assert.Equal(t, "NC_000913.3", searchResult.Hits[0].Accession)
}

func TestBlastSearchTool_InvalidParams(t *testing.T) {
	server, _, _ := newTestMCPServer(t)

	result, err := server.handleBlastSearch(context.Background(), toolCall(`{"sequence": 5}`))

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "Error:")
}

func TestBlastSearchTool_ValidationFailure(t *testing.T) {
	server, _, _ := newTestMCPServer(t)

	result, err := server.handleBlastSearch(context.Background(), toolCall(
		`{"sequence": "ACGT", "blast_type": "blastn", "database": "ecoli_k12"}`))

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "validation error")
}

func TestListDatabasesTool(t *testing.T) {
	server, databases, _ := newTestMCPServer(t)
	databases.records = []*domain.DatabaseRecord{readyRecord()}

	result, err := server.handleListDatabases(context.Background(), toolCall(`{}`))

	require.NoError(t, err)
	require.False(t, result.IsError)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, 1, body.Count)
}

func TestCreateDatabaseTool(t *testing.T) {
	server, databases, _ := newTestMCPServer(t)

	result, err := server.handleCreateDatabase(context.Background(), toolCall(
		`{"name": "ecoli_k12", "source_path": "/data/ecoli.fasta", "mol_type": "nucleotide"}`))

	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "ecoli_k12", databases.gotName)
	assert.Equal(t, "/data/ecoli.fasta", databases.gotPath)
	assert.Equal(t, domain.MolNucleotide, databases.gotMol)
}

func TestSequenceProfileTool(t *testing.T) {
	server, _, _ := newTestMCPServer(t)

	result, err := server.handleSequenceProfile(context.Background(), toolCall(
		`{"sequence": "MKKLVAFWDE"}`))

	require.NoError(t, err)
	require.False(t, result.IsError)

	var profile domain.SequenceProfile
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &profile))
	assert.Equal(t, 10, profile.Length)
	assert.Equal(t, 2, profile.Counts["K"])
}

func TestSearchHistoryTool_DefaultLimit(t *testing.T) {
	server, _, historyStore := newTestMCPServer(t)
	historyStore.records = []*domain.SearchRecord{{SearchID: "a"}}

	result, err := server.handleSearchHistory(context.Background(), toolCall(`{}`))

	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, defaultHistoryLimit, historyStore.gotLimit)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, 1, body.Count)
}
