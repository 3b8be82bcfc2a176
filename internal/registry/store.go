// Package registry manages local BLAST databases: building them from FASTA
// sources, persisting their records, validating their on-disk artifacts and
// resolving search requests to filesystem paths.
package registry

import (
	"context"
	"errors"

	"github.com/blast-search-server/internal/domain"
)

// ErrBusy rejects delete and rebuild operations against a record that is
// still in the creating state.
var ErrBusy = errors.New("database build in progress")

// Store persists database records. Implementations translate their
// backend-specific not-found conditions to domain.ErrNotFound.
type Store interface {
	// Save inserts the record or replaces the row with the same id.
	Save(ctx context.Context, record *domain.DatabaseRecord) error

	// Get retrieves a record by id.
	Get(ctx context.Context, id string) (*domain.DatabaseRecord, error)

	// GetByName retrieves a record by its unique name.
	GetByName(ctx context.Context, name string) (*domain.DatabaseRecord, error)

	// List returns all records, newest first.
	List(ctx context.Context) ([]*domain.DatabaseRecord, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close() error
}

// Builder produces the on-disk artifact set for a database and reports the
// sequence and letter counts of the finished build. Implemented by the
// makeblastdb-driving backend package; faked in tests.
type Builder interface {
	Build(ctx context.Context, sourcePath, basePath string, mol domain.MolType, title string) (sequences, letters int64, err error)
}
