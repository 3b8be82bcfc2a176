package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/registry"
	"github.com/blast-search-server/internal/service"
)

const testSequence = "ATGGCGATTACCGGTAAAGCTTGCAGGTTCAAGGATCCGA"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type testConfigManager struct {
	cfg *domain.Config
}

func (m *testConfigManager) GetConfig() *domain.Config                 { return m.cfg }
func (m *testConfigManager) GetServerConfig() *domain.ServerConfig     { return &m.cfg.Server }
func (m *testConfigManager) GetRegistryConfig() *domain.RegistryConfig { return &m.cfg.Registry }
func (m *testConfigManager) GetNCBIConfig() *domain.NCBIConfig         { return &m.cfg.NCBI }
func (m *testConfigManager) Reload() error                             { return nil }
func (m *testConfigManager) Validate() error                           { return nil }
func (m *testConfigManager) IsProduction() bool                        { return false }

type mockDatabases struct {
	mock.Mock
}

func (m *mockDatabases) Create(ctx context.Context, name, sourcePath string, mol domain.MolType) (*domain.DatabaseRecord, error) {
	args := m.Called(ctx, name, sourcePath, mol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DatabaseRecord), args.Error(1)
}

func (m *mockDatabases) List(ctx context.Context) ([]*domain.DatabaseRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DatabaseRecord), args.Error(1)
}

func (m *mockDatabases) Update(ctx context.Context, ref string) (*domain.DatabaseRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DatabaseRecord), args.Error(1)
}

func (m *mockDatabases) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Save(ctx context.Context, record *domain.SearchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockHistory) Get(ctx context.Context, searchID string) (*domain.SearchRecord, error) {
	args := m.Called(ctx, searchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchRecord), args.Error(1)
}

func (m *mockHistory) List(ctx context.Context, limit, offset int) ([]*domain.SearchRecord, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchRecord), args.Error(1)
}

func (m *mockHistory) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHistory) Delete(ctx context.Context, searchID string) error {
	args := m.Called(ctx, searchID)
	return args.Error(0)
}

func (m *mockHistory) ExportJSON(ctx context.Context, writer io.Writer) error {
	args := m.Called(ctx, writer)
	return args.Error(0)
}

func (m *mockHistory) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	args := m.Called(ctx, reader)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockHistory) Close() error {
	args := m.Called()
	return args.Error(0)
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

type serverFixture struct {
	server    *Server
	databases *mockDatabases
	history   *mockHistory
}

func newTestServer(t *testing.T, backend domain.ExecutionBackend, resolver service.DatabaseResolver) *serverFixture {
	t.Helper()

	logger := testLogger()
	orchestrator := service.NewOrchestrator(
		service.NewSequenceValidator(), resolver, backend, backend, nil, nil, logger)
	profiles, err := service.NewProfileService(8, logger)
	require.NoError(t, err)

	databases := &mockDatabases{}
	historyStore := &mockHistory{}
	cfg := &domain.Config{}
	cfg.Logging.Level = "error"
	cfg.Registry.DataDir = t.TempDir()

	server := NewServer(&testConfigManager{cfg: cfg}, orchestrator, databases, profiles, historyStore, logger)
	return &serverFixture{server: server, databases: databases, history: historyStore}
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("List", mock.Anything).Return([]*domain.DatabaseRecord{readyRecord()}, nil)
	fx.history.On("Count", mock.Anything).Return(int64(7), nil)

	recorder := doJSON(t, fx.server, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serverVersion, body["version"])
	assert.NotEmpty(t, recorder.Header().Get("X-Correlation-ID"))
}

func TestHealth_DegradedWhenStoreFails(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("List", mock.Anything).Return(nil, fmt.Errorf("registry store unreachable"))
	fx.history.On("Count", mock.Anything).Return(int64(0), nil)

	recorder := doJSON(t, fx.server, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Equal(t, "degraded", decodeBody(t, recorder)["status"])
}

func TestSearchEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/search", map[string]any{
		"sequence":   testSequence,
		"blast_type": "blastn",
		"service":    "local",
		"database":   "ecoli_k12",
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.True(t, result.IsRealResults)
	assert.Equal(t, domain.SourceLocal, result.Source)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "NC_000913.3", result.Hits[0].Accession)
}

func TestSearchEndpoint_ValidationError(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/search", map[string]any{
		"sequence":   "ACGT",
		"blast_type": "blastn",
		"service":    "local",
		"database":   "ecoli_k12",
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "validation_error", decodeBody(t, recorder)["error"])
}

func TestSearchEndpoint_UnknownDatabase(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()},
		stubResolver{err: &domain.DatabaseNotFoundError{Ref: "missing"}})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/search", map[string]any{
		"sequence":   testSequence,
		"blast_type": "blastn",
		"service":    "local",
		"database":   "missing",
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "database_not_found", decodeBody(t, recorder)["error"])
}

func TestSearchEndpoint_MalformedJSON(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	fx.server.router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "validation_error", decodeBody(t, recorder)["error"])
}

func TestSearchEndpoint_FallbackStillOK(t *testing.T) {
	fx := newTestServer(t,
		stubBackend{err: &domain.ProcessExecutionError{Kind: domain.ExecGenericFailure, Stderr: "boom"}},
		stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/search", map[string]any{
		"sequence":   testSequence,
		"blast_type": "blastn",
		"service":    "local",
		"database":   "ecoli_k12",
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.False(t, result.IsRealResults)
	assert.Equal(t, domain.SourceFallback, result.Source)
	assert.NotEmpty(t, result.Hits)
}

func TestListDatabasesEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("List", mock.Anything).Return([]*domain.DatabaseRecord{readyRecord()}, nil)

	recorder := doJSON(t, fx.server, http.MethodGet, "/api/v1/databases", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, float64(1), body["count"])
}

func TestCreateDatabaseEndpoint_JSON(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Create", mock.Anything, "ecoli_k12", "/data/ecoli.fasta", domain.MolNucleotide).
		Return(readyRecord(), nil)

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/databases", map[string]any{
		"name":        "ecoli_k12",
		"source_path": "/data/ecoli.fasta",
		"mol_type":    "nucleotide",
	})

	require.Equal(t, http.StatusCreated, recorder.Code)
	fx.databases.AssertExpectations(t)
}

func TestCreateDatabaseEndpoint_Multipart(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Create", mock.Anything, "uploaded", mock.MatchedBy(func(path string) bool {
		return strings.Contains(path, "uploads") && strings.HasSuffix(path, ".fasta")
	}), domain.MolNucleotide).Return(readyRecord(), nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("name", "uploaded"))
	require.NoError(t, writer.WriteField("mol_type", "nucleotide"))
	part, err := writer.CreateFormFile("fasta", "genome.fasta")
	require.NoError(t, err)
	_, err = part.Write([]byte(">seq1\nATGGCGATTACCGGTAAAGC\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/databases", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	fx.server.router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusCreated, recorder.Code)
	fx.databases.AssertExpectations(t)
}

func TestCreateDatabaseEndpoint_DuplicateName(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Create", mock.Anything, "ecoli_k12", "/data/ecoli.fasta", domain.MolNucleotide).
		Return(nil, domain.NewValidationError("name", `database name "ecoli_k12" already in use`))

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/databases", map[string]any{
		"name":        "ecoli_k12",
		"source_path": "/data/ecoli.fasta",
		"mol_type":    "nucleotide",
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "validation_error", decodeBody(t, recorder)["error"])
}

func TestDeleteDatabaseEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Delete", mock.Anything, "ecoli_k12").Return(nil)

	recorder := doJSON(t, fx.server, http.MethodDelete, "/api/v1/databases/ecoli_k12", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "deleted", decodeBody(t, recorder)["status"])
}

func TestDeleteDatabaseEndpoint_NotFound(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Delete", mock.Anything, "missing").
		Return(&domain.DatabaseNotFoundError{Ref: "missing"})

	recorder := doJSON(t, fx.server, http.MethodDelete, "/api/v1/databases/missing", nil)

	require.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "database_not_found", decodeBody(t, recorder)["error"])
}

func TestDeleteDatabaseEndpoint_Busy(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Delete", mock.Anything, "building").Return(registry.ErrBusy)

	recorder := doJSON(t, fx.server, http.MethodDelete, "/api/v1/databases/building", nil)

	require.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "registry_busy", decodeBody(t, recorder)["error"])
}

func TestRebuildDatabaseEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.databases.On("Update", mock.Anything, "ecoli_k12").Return(readyRecord(), nil)

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/databases/ecoli_k12/rebuild", nil)

	require.Equal(t, http.StatusOK, recorder.Code)

	var record domain.DatabaseRecord
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &record))
	assert.Equal(t, "ecoli_k12", record.Name)
}

func TestHistoryEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})
	fx.history.On("List", mock.Anything, 2, 0).Return([]*domain.SearchRecord{
		{SearchID: "a"}, {SearchID: "b"},
	}, nil)
	fx.history.On("Count", mock.Anything).Return(int64(5), nil)

	recorder := doJSON(t, fx.server, http.MethodGet, "/api/v1/history?limit=2", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, float64(5), body["count"])
	assert.Equal(t, float64(2), body["limit"])
	fx.history.AssertExpectations(t)
}

func TestHistoryEndpoint_BadLimit(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodGet, "/api/v1/history?limit=many", nil)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "validation_error", decodeBody(t, recorder)["error"])
}

func TestProfileEndpoint(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/sequence/profile", map[string]any{
		"sequence": "MKKLVAFWDE",
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var profile domain.SequenceProfile
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &profile))
	assert.Equal(t, 10, profile.Length)
	assert.Equal(t, 2, profile.Counts["K"])
}

func TestProfileEndpoint_InvalidSequence(t *testing.T) {
	fx := newTestServer(t, stubBackend{output: tabularOutput()}, stubResolver{record: readyRecord()})

	recorder := doJSON(t, fx.server, http.MethodPost, "/api/v1/sequence/profile", map[string]any{
		"sequence": "AC",
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "validation_error", decodeBody(t, recorder)["error"])
}
