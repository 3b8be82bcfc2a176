// Package registry manages the catalog of locally built BLAST databases.
// Each database is a directory of formatted index files plus a persisted
// record tracking its lifecycle. Records move creating -> ready on a
// successful build; a failed create is rolled back entirely so the catalog
// never shows a half-built database.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

// Registry coordinates the store, the builder subprocesses and the on-disk
// artifacts. All mutations of a record go through here.
type Registry struct {
	store   Store
	builder Builder
	dataDir string
	log     *logrus.Logger

	mu        sync.Mutex
	validated bool
}

// NewRegistry wires a registry over the given store and builder. dataDir is
// where new database directories are allocated; it is created on demand.
func NewRegistry(store Store, builder Builder, dataDir string, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		store:   store,
		builder: builder,
		dataDir: dataDir,
		log:     logger,
	}
}

// Create builds a new BLAST database from a FASTA file. The record is
// persisted in creating state before the builder runs and flipped to ready
// with measured counts afterwards. Any failure along the way removes both
// the record and the partial artifacts.
func (r *Registry) Create(ctx context.Context, name, sourcePath string, mol domain.MolType) (*domain.DatabaseRecord, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "database name is required")
	}
	if mol != domain.MolNucleotide && mol != domain.MolProtein {
		return nil, domain.NewValidationError("mol_type", fmt.Sprintf("unknown molecule type %q", mol))
	}

	if existing, err := r.store.GetByName(ctx, name); err == nil && existing != nil {
		return nil, domain.NewValidationError("name", fmt.Sprintf("database name %q already in use", name))
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := CheckFASTA(sourcePath); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	storageDir := filepath.Join(r.dataDir, id)
	record := &domain.DatabaseRecord{
		ID:             id,
		Name:           name,
		MolType:        mol,
		Status:         domain.StatusCreating,
		StorageDir:     storageDir,
		BasePath:       filepath.Join(storageDir, "db"),
		SourceFilePath: sourcePath,
		CreatedAt:      time.Now(),
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	if err := r.store.Save(ctx, record); err != nil {
		os.RemoveAll(storageDir)
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"database_id": id,
		"name":        name,
		"mol_type":    mol,
		"source":      sourcePath,
	}).Info("Building BLAST database")

	sequences, letters, err := r.builder.Build(ctx, sourcePath, record.BasePath, mol, name)
	if err != nil {
		r.rollback(ctx, record)
		return nil, err
	}

	record.Status = domain.StatusReady
	record.SequenceCount = sequences
	record.LetterCount = letters
	record.LastValidated = time.Now()
	if err := r.store.Save(ctx, record); err != nil {
		r.rollback(ctx, record)
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"database_id": id,
		"name":        name,
		"sequences":   sequences,
		"letters":     letters,
	}).Info("BLAST database ready")
	return record, nil
}

// rollback undoes a failed create so no creating record survives.
func (r *Registry) rollback(ctx context.Context, record *domain.DatabaseRecord) {
	if err := r.store.Delete(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.log.WithFields(logrus.Fields{
			"database_id": record.ID,
			"error":       err,
		}).Warn("Rollback could not remove database record")
	}
	if err := os.RemoveAll(record.StorageDir); err != nil {
		r.log.WithFields(logrus.Fields{
			"database_id": record.ID,
			"error":       err,
		}).Warn("Rollback could not remove database directory")
	}
}

// Update rebuilds an existing database from its original source file. The
// record passes through creating again; a failed rebuild leaves it in error
// state rather than removing it, since the old artifacts may be gone.
func (r *Registry) Update(ctx context.Context, ref string) (*domain.DatabaseRecord, error) {
	record, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.StatusCreating {
		return nil, ErrBusy
	}
	if err := CheckFASTA(record.SourceFilePath); err != nil {
		return nil, err
	}

	record.Status = domain.StatusCreating
	if err := r.store.Save(ctx, record); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"database_id": record.ID,
		"name":        record.Name,
	}).Info("Rebuilding BLAST database")

	sequences, letters, err := r.builder.Build(ctx, record.SourceFilePath, record.BasePath, record.MolType, record.Name)
	if err != nil {
		record.Status = domain.StatusError
		if saveErr := r.store.Save(ctx, record); saveErr != nil {
			r.log.WithFields(logrus.Fields{
				"database_id": record.ID,
				"error":       saveErr,
			}).Warn("Could not mark database as errored")
		}
		return nil, err
	}

	record.Status = domain.StatusReady
	record.SequenceCount = sequences
	record.LetterCount = letters
	record.LastValidated = time.Now()
	if err := r.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate re-checks that the core index files for a record still exist.
// A record whose files are gone is removed from the catalog and false is
// returned; the caller decides whether that is an error.
func (r *Registry) Validate(ctx context.Context, ref string) (bool, error) {
	record, err := r.Resolve(ctx, ref)
	if err != nil {
		return false, err
	}
	if ok := artifactsPresent(record); !ok {
		r.log.WithFields(logrus.Fields{
			"database_id": record.ID,
			"name":        record.Name,
		}).Warn("Database index files missing, removing record")
		r.remove(ctx, record)
		return false, nil
	}

	record.LastValidated = time.Now()
	if err := r.store.Save(ctx, record); err != nil {
		return true, err
	}
	return true, nil
}

// List returns all records, newest first. The first call in a process runs
// a validation sweep that drops ready records whose files have disappeared
// since the last run.
func (r *Registry) List(ctx context.Context) ([]*domain.DatabaseRecord, error) {
	if err := r.ensureValidated(ctx); err != nil {
		return nil, err
	}
	return r.store.List(ctx)
}

// ensureValidated performs the once-per-load sweep over ready records.
func (r *Registry) ensureValidated(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validated {
		return nil
	}

	records, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Status != domain.StatusReady {
			continue
		}
		if !artifactsPresent(record) {
			r.log.WithFields(logrus.Fields{
				"database_id": record.ID,
				"name":        record.Name,
			}).Warn("Dropping stale database record, index files missing")
			r.remove(ctx, record)
		}
	}
	r.validated = true
	return nil
}

// Resolve finds a record by id first, then by name.
func (r *Registry) Resolve(ctx context.Context, ref string) (*domain.DatabaseRecord, error) {
	record, err := r.store.Get(ctx, ref)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	record, err = r.store.GetByName(ctx, ref)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.DatabaseNotFoundError{Ref: ref}
	}
	return nil, err
}

// ResolveReady resolves a reference to a ready database record. Records in
// any other state resolve as not found, so callers never hand a half-built
// database to a search binary.
func (r *Registry) ResolveReady(ctx context.Context, ref string) (*domain.DatabaseRecord, error) {
	if err := r.ensureValidated(ctx); err != nil {
		return nil, err
	}
	record, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.StatusReady {
		return nil, &domain.DatabaseNotFoundError{Ref: ref}
	}
	return record, nil
}

// ResolvePath maps a database reference to the base path the search
// backend hands to the BLAST binaries. Only ready databases resolve.
func (r *Registry) ResolvePath(ctx context.Context, ref string) (string, error) {
	record, err := r.ResolveReady(ctx, ref)
	if err != nil {
		return "", err
	}
	return record.BasePath, nil
}

// Delete removes a database's files and record. Index files are swept by
// the enumerated extensions for its molecule type; files already gone are
// not an error.
func (r *Registry) Delete(ctx context.Context, ref string) error {
	record, err := r.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if record.Status == domain.StatusCreating {
		return ErrBusy
	}

	r.remove(ctx, record)
	r.log.WithFields(logrus.Fields{
		"database_id": record.ID,
		"name":        record.Name,
	}).Info("Deleted BLAST database")
	return nil
}

// remove sweeps the on-disk artifacts then the record.
func (r *Registry) remove(ctx context.Context, record *domain.DatabaseRecord) {
	for _, ext := range record.MolType.ArtifactExtensions() {
		os.Remove(record.BasePath + ext)
	}
	os.Remove(record.StorageDir)

	if err := r.store.Delete(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.log.WithFields(logrus.Fields{
			"database_id": record.ID,
			"error":       err,
		}).Warn("Could not delete database record")
	}
}

// artifactsPresent reports whether every core index file exists.
func artifactsPresent(record *domain.DatabaseRecord) bool {
	for _, ext := range record.MolType.CoreArtifactExtensions() {
		if _, err := os.Stat(record.BasePath + ext); err != nil {
			return false
		}
	}
	return true
}
