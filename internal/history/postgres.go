package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/blast-search-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL. It expects
// the search_history table to already exist (created via migrations).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database/sql connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a connection from a postgres:// URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

const pgHistoryColumns = `search_id, blast_type, service, database_ref,
	query_preview, query_length, query_type, hit_count,
	best_evalue, best_bit_score, is_real, error_message, source,
	duration_ms, created_at`

// Save stores a search record, replacing any row with the same search id.
func (s *PostgresStore) Save(ctx context.Context, record *domain.SearchRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO search_history (
			search_id, blast_type, service, database_ref,
			query_preview, query_length, query_type, hit_count,
			best_evalue, best_bit_score, is_real, error_message, source,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (search_id) DO UPDATE SET
			blast_type = EXCLUDED.blast_type,
			service = EXCLUDED.service,
			database_ref = EXCLUDED.database_ref,
			query_preview = EXCLUDED.query_preview,
			query_length = EXCLUDED.query_length,
			query_type = EXCLUDED.query_type,
			hit_count = EXCLUDED.hit_count,
			best_evalue = EXCLUDED.best_evalue,
			best_bit_score = EXCLUDED.best_bit_score,
			is_real = EXCLUDED.is_real,
			error_message = EXCLUDED.error_message,
			source = EXCLUDED.source,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err := s.db.ExecContext(ctx, query,
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
func (s *PostgresStore) Get(ctx context.Context, searchID string) (*domain.SearchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pgHistoryColumns+" FROM search_history WHERE search_id = $1", searchID)
	rec, err := scanSearchRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("search %s: %w", searchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search record: %w", err)
	}
	return rec, nil
}

// List returns records newest first, with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.SearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pgHistoryColumns+` FROM search_history
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count search history: %w", err)
	}
	return count, nil
}

// Delete removes a record by search id.
func (s *PostgresStore) Delete(ctx context.Context, searchID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM search_history WHERE search_id = $1", searchID)
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

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON writes all records to writer as a versioned envelope.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
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
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
