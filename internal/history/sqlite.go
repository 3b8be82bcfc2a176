package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blast-search-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite history store. It creates the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createHistorySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createHistorySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_history (
		search_id TEXT PRIMARY KEY,
		blast_type TEXT NOT NULL,
		service TEXT NOT NULL,
		database_ref TEXT NOT NULL,
		query_preview TEXT NOT NULL DEFAULT '',
		query_length INTEGER NOT NULL DEFAULT 0,
		query_type TEXT NOT NULL DEFAULT '',
		hit_count INTEGER NOT NULL DEFAULT 0,
		best_evalue REAL NOT NULL DEFAULT 0,
		best_bit_score REAL NOT NULL DEFAULT 0,
		is_real INTEGER NOT NULL DEFAULT 1,
		error_message TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_search_history_created_at ON search_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_search_history_database ON search_history(database_ref);
	`
	_, err := db.Exec(schema)
	return err
}

const historyColumns = `search_id, blast_type, service, database_ref,
	query_preview, query_length, query_type, hit_count,
	best_evalue, best_bit_score, is_real, error_message, source,
	duration_ms, created_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSearchRecord(s scanner) (*domain.SearchRecord, error) {
	rec := &domain.SearchRecord{}
	var blastType, service, queryType, source string
	var durationMS int64

	err := s.Scan(
		&rec.SearchID, &blastType, &service, &rec.Database,
		&rec.QueryPreview, &rec.QueryLength, &queryType, &rec.HitCount,
		&rec.BestEvalue, &rec.BestBitScore, &rec.IsReal, &rec.ErrorMessage,
		&source, &durationMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.BlastType = domain.BlastType(blastType)
	rec.Service = domain.ServiceType(service)
	rec.QueryType = domain.SequenceType(queryType)
	rec.Source = domain.ResultSource(source)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

// Save stores a search record, replacing any row with the same search id.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.SearchRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (
			search_id, blast_type, service, database_ref,
			query_preview, query_length, query_type, hit_count,
			best_evalue, best_bit_score, is_real, error_message, source,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(search_id) DO UPDATE SET
			blast_type = excluded.blast_type,
			service = excluded.service,
			database_ref = excluded.database_ref,
			query_preview = excluded.query_preview,
			query_length = excluded.query_length,
			query_type = excluded.query_type,
			hit_count = excluded.hit_count,
			best_evalue = excluded.best_evalue,
			best_bit_score = excluded.best_bit_score,
			is_real = excluded.is_real,
			error_message = excluded.error_message,
			source = excluded.source,
			duration_ms = excluded.duration_ms
	`,
		record.SearchID, string(record.BlastType), string(record.Service), record.Database,
		record.QueryPreview, record.QueryLength, string(record.QueryType), record.HitCount,
		record.BestEvalue, record.BestBitScore, record.IsReal, record.ErrorMessage,
		string(record.Source), record.Duration.Milliseconds(), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save search record: %w", err)
	}
	return nil
}

// Get retrieves a record by search id.
func (s *SQLiteStore) Get(ctx context.Context, searchID string) (*domain.SearchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+historyColumns+" FROM search_history WHERE search_id = ?", searchID)
	rec, err := scanSearchRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("search %s: %w", searchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan search record: %w", err)
	}
	return rec, nil
}

// List returns records newest first, with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.SearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+historyColumns+` FROM search_history
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	var result []*domain.SearchRecord
	for rows.Next() {
		rec, err := scanSearchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_history").Scan(&count)
	return count, err
}

// Delete removes a record by search id.
func (s *SQLiteStore) Delete(ctx context.Context, searchID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM search_history WHERE search_id = ?", searchID)
	if err != nil {
		return fmt.Errorf("failed to delete search record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("search %s: %w", searchID, domain.ErrNotFound)
	}
	return nil
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON writes all records to writer as a versioned envelope.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list search history: %w", err)
	}

	export := &HistoryExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON reads an exported envelope and inserts records that are not
// already present.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Records {
		if rec.SearchID == "" {
			skipped++
			continue
		}
		_, getErr := s.Get(ctx, rec.SearchID)
		if getErr == nil {
			skipped++
			continue
		}
		if !errors.Is(getErr, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", getErr)
		}
		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
