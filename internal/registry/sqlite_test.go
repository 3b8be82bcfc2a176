package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blast-search-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "registry.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func testRecord(id, name string) *domain.DatabaseRecord {
	return &domain.DatabaseRecord{
		ID:             id,
		Name:           name,
		MolType:        domain.MolNucleotide,
		Status:         domain.StatusReady,
		StorageDir:     "/data/databases/" + id,
		BasePath:       "/data/databases/" + id + "/db",
		SequenceCount:  4,
		LetterCount:    1172,
		SourceFilePath: "/uploads/" + name + ".fasta",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "registry.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := testRecord("db-1", "ecoli_k12")
	record.LastValidated = time.Now().Add(-time.Hour)

	require.NoError(t, store.Save(ctx, record))
	assert.False(t, record.CreatedAt.IsZero(), "CreatedAt should be set on save")

	got, err := store.Get(ctx, "db-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Name, got.Name)
	assert.Equal(t, domain.MolNucleotide, got.MolType)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, record.BasePath, got.BasePath)
	assert.Equal(t, int64(4), got.SequenceCount)
	assert.Equal(t, int64(1172), got.LetterCount)
	assert.Equal(t, record.SourceFilePath, got.SourceFilePath)
	assert.False(t, got.LastValidated.IsZero())
}

func TestSQLiteStore_Save_Upsert(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := testRecord("db-1", "ecoli_k12")
	record.Status = domain.StatusCreating
	record.SequenceCount = 0
	record.LetterCount = 0
	require.NoError(t, store.Save(ctx, record))

	record.Status = domain.StatusReady
	record.SequenceCount = 4
	record.LetterCount = 1172
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, "db-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, int64(4), got.SequenceCount)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "Upsert should not create a second row")
}

func TestSQLiteStore_Get_ZeroLastValidated(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := testRecord("db-1", "ecoli_k12")
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, "db-1")
	require.NoError(t, err)
	assert.True(t, got.LastValidated.IsZero(), "Unvalidated record should round-trip a zero timestamp")
}

func TestSQLiteStore_GetByName(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord("db-1", "ecoli_k12")))
	require.NoError(t, store.Save(ctx, testRecord("db-2", "yeast_orfs")))

	got, err := store.GetByName(ctx, "yeast_orfs")
	require.NoError(t, err)
	assert.Equal(t, "db-2", got.ID)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Delete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_List_NewestFirst(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first", "second", "third"} {
		record := testRecord(name+"-id", name)
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, record))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Name)
	assert.Equal(t, "first", list[2].Name)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord("db-1", "ecoli_k12")))
	require.NoError(t, store.Delete(ctx, "db-1"))

	_, err := store.Get(ctx, "db-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
