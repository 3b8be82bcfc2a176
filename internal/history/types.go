// Package history persists a flattened record of every orchestrated search
// so past runs can be listed, inspected and exported without keeping full
// result payloads around.
package history

import (
	"context"
	"io"
	"time"

	"github.com/blast-search-server/internal/domain"
)

// Store defines the interface for search history storage operations.
type Store interface {
	// Save stores a search record. Saving the same search id again
	// replaces the stored row.
	Save(ctx context.Context, record *domain.SearchRecord) error

	// Get retrieves a record by its search id. Returns an error wrapping
	// domain.ErrNotFound when no record exists.
	Get(ctx context.Context, searchID string) (*domain.SearchRecord, error)

	// List returns records newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*domain.SearchRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record by search id.
	Delete(ctx context.Context, searchID string) error

	// ExportJSON writes all records to writer as a versioned envelope.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an exported envelope and inserts records that are
	// not already present. Returns the number imported and skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// HistoryExport is the JSON envelope produced by ExportJSON.
type HistoryExport struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Count      int                    `json:"count"`
	Records    []*domain.SearchRecord `json:"records"`
}
