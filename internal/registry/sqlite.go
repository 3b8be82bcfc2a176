package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blast-search-server/internal/domain"
)

// SQLiteStore is the default record store. It needs no external service and
// creates its schema on open.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the registry database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked while a build transaction is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createRegistrySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createRegistrySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blast_databases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		mol_type TEXT NOT NULL,
		status TEXT NOT NULL,
		storage_dir TEXT NOT NULL,
		base_path TEXT NOT NULL,
		sequence_count INTEGER NOT NULL DEFAULT 0,
		letter_count INTEGER NOT NULL DEFAULT 0,
		source_file_path TEXT NOT NULL DEFAULT '',
		last_validated DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_blast_databases_name ON blast_databases(name);
	CREATE INDEX IF NOT EXISTS idx_blast_databases_status ON blast_databases(status);
	`
	_, err := db.Exec(schema)
	return err
}

const recordColumns = `id, name, mol_type, status, storage_dir, base_path,
	sequence_count, letter_count, source_file_path, last_validated, created_at`

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.DatabaseRecord, error) {
	rec := &domain.DatabaseRecord{}
	var molType, status string
	var lastValidated sql.NullTime

	err := s.Scan(
		&rec.ID, &rec.Name, &molType, &status, &rec.StorageDir, &rec.BasePath,
		&rec.SequenceCount, &rec.LetterCount, &rec.SourceFilePath,
		&lastValidated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.MolType = domain.MolType(molType)
	rec.Status = domain.DatabaseStatus(status)
	if lastValidated.Valid {
		rec.LastValidated = lastValidated.Time
	}
	return rec, nil
}

// Save inserts the record or replaces the existing row with the same id.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.DatabaseRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	var lastValidated interface{}
	if !record.LastValidated.IsZero() {
		lastValidated = record.LastValidated
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blast_databases (
			id, name, mol_type, status, storage_dir, base_path,
			sequence_count, letter_count, source_file_path, last_validated, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mol_type = excluded.mol_type,
			status = excluded.status,
			storage_dir = excluded.storage_dir,
			base_path = excluded.base_path,
			sequence_count = excluded.sequence_count,
			letter_count = excluded.letter_count,
			source_file_path = excluded.source_file_path,
			last_validated = excluded.last_validated
	`,
		record.ID, record.Name, string(record.MolType), string(record.Status),
		record.StorageDir, record.BasePath,
		record.SequenceCount, record.LetterCount, record.SourceFilePath,
		lastValidated, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.DatabaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM blast_databases WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("database %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

// GetByName retrieves a record by its unique name.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*domain.DatabaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM blast_databases WHERE name = ?", name)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("database %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*domain.DatabaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM blast_databases ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*domain.DatabaseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes a record by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM blast_databases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("database %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
