package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blast-search-server/internal/database"
	"github.com/blast-search-server/internal/domain"
)

// generateTestPassword creates a random password for throwaway test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := domain.DatabaseConfig{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		SSLMode:     "disable",
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.Connect(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	migrationRunner, err := database.NewMigrationRunner(database.URL(config), "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := migrationRunner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store := NewPostgresStore(db.Pool, logger)

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return store, cleanup
}

func TestPostgresStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	record := testRecord("pg-db-1", "ecoli_k12")
	record.LastValidated = time.Now()

	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	retrieved, err := store.Get(ctx, "pg-db-1")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if retrieved.Name != "ecoli_k12" {
		t.Errorf("Expected name ecoli_k12, got %s", retrieved.Name)
	}
	if retrieved.MolType != domain.MolNucleotide {
		t.Errorf("Expected nucleotide mol type, got %s", retrieved.MolType)
	}
	if retrieved.SequenceCount != 4 {
		t.Errorf("Expected 4 sequences, got %d", retrieved.SequenceCount)
	}
	if retrieved.LastValidated.IsZero() {
		t.Error("Expected LastValidated to survive the round trip")
	}

	byName, err := store.GetByName(ctx, "ecoli_k12")
	if err != nil {
		t.Fatalf("Failed to get record by name: %v", err)
	}
	if byName.ID != "pg-db-1" {
		t.Errorf("Expected ID pg-db-1, got %s", byName.ID)
	}
}

func TestPostgresStore_Upsert(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	record := testRecord("pg-db-1", "ecoli_k12")
	record.Status = domain.StatusCreating
	record.SequenceCount = 0

	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Failed to save creating record: %v", err)
	}

	record.Status = domain.StatusReady
	record.SequenceCount = 4
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	retrieved, err := store.Get(ctx, "pg-db-1")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if retrieved.Status != domain.StatusReady {
		t.Errorf("Expected ready status, got %s", retrieved.Status)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 record after upsert, got %d", len(list))
	}
}

func TestPostgresStore_ListOrder(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first", "second", "third"} {
		record := testRecord(name+"-id", name)
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Failed to save record %s: %v", name, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(list))
	}
	if list[0].Name != "third" {
		t.Errorf("Expected newest record first, got %s", list[0].Name)
	}
}

func TestPostgresStore_DeleteAndNotFound(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	record := testRecord("pg-db-1", "ecoli_k12")
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	if err := store.Delete(ctx, "pg-db-1"); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}

	if _, err := store.Get(ctx, "pg-db-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "pg-db-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}
