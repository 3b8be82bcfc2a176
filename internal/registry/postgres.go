package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

// PostgresStore persists registry records in the blast_databases table
// created by the migrations. Used when several server instances share one
// registry; the embedded sqlite store covers the single-node case.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresStore wraps an existing connection pool. The pool stays owned
// by the caller; Close here is a no-op so the history store can share it.
func NewPostgresStore(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: logger}
}

func (s *PostgresStore) Save(ctx context.Context, record *domain.DatabaseRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	var lastValidated interface{}
	if !record.LastValidated.IsZero() {
		lastValidated = record.LastValidated
	}

	query := `
		INSERT INTO blast_databases (
			id, name, mol_type, status, storage_dir, base_path,
			sequence_count, letter_count, source_file_path, last_validated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mol_type = EXCLUDED.mol_type,
			status = EXCLUDED.status,
			storage_dir = EXCLUDED.storage_dir,
			base_path = EXCLUDED.base_path,
			sequence_count = EXCLUDED.sequence_count,
			letter_count = EXCLUDED.letter_count,
			source_file_path = EXCLUDED.source_file_path,
			last_validated = EXCLUDED.last_validated`

	_, err := s.pool.Exec(ctx, query,
		record.ID, record.Name, string(record.MolType), string(record.Status),
		record.StorageDir, record.BasePath,
		record.SequenceCount, record.LetterCount, record.SourceFilePath,
		lastValidated, record.CreatedAt,
	)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"database_id": record.ID,
			"name":        record.Name,
			"error":       err,
		}).Error("Failed to save database record")
		return fmt.Errorf("saving database record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.DatabaseRecord, error) {
	return s.getWhere(ctx, "id = $1", id)
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*domain.DatabaseRecord, error) {
	return s.getWhere(ctx, "name = $1", name)
}

func (s *PostgresStore) getWhere(ctx context.Context, clause, arg string) (*domain.DatabaseRecord, error) {
	query := `
		SELECT id, name, mol_type, status, storage_dir, base_path,
		       sequence_count, letter_count, source_file_path, last_validated, created_at
		FROM blast_databases
		WHERE ` + clause

	rec := &domain.DatabaseRecord{}
	var molType, status string
	var lastValidated *time.Time

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&rec.ID, &rec.Name, &molType, &status, &rec.StorageDir, &rec.BasePath,
		&rec.SequenceCount, &rec.LetterCount, &rec.SourceFilePath,
		&lastValidated, &rec.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("database %s: %w", arg, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting database record: %w", err)
	}

	rec.MolType = domain.MolType(molType)
	rec.Status = domain.DatabaseStatus(status)
	if lastValidated != nil {
		rec.LastValidated = *lastValidated
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*domain.DatabaseRecord, error) {
	query := `
		SELECT id, name, mol_type, status, storage_dir, base_path,
		       sequence_count, letter_count, source_file_path, last_validated, created_at
		FROM blast_databases
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing database records: %w", err)
	}
	defer rows.Close()

	var records []*domain.DatabaseRecord
	for rows.Next() {
		rec := &domain.DatabaseRecord{}
		var molType, status string
		var lastValidated *time.Time

		err := rows.Scan(
			&rec.ID, &rec.Name, &molType, &status, &rec.StorageDir, &rec.BasePath,
			&rec.SequenceCount, &rec.LetterCount, &rec.SourceFilePath,
			&lastValidated, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning database row: %w", err)
		}

		rec.MolType = domain.MolType(molType)
		rec.Status = domain.DatabaseStatus(status)
		if lastValidated != nil {
			rec.LastValidated = *lastValidated
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating database rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM blast_databases WHERE id = $1", id)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"database_id": id,
			"error":       err,
		}).Error("Failed to delete database record")
		return fmt.Errorf("deleting database record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("database %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

var _ Store = (*PostgresStore)(nil)
