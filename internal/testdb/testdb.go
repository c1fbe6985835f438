// Package testdb starts throwaway databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	// registers the "sqlite3" database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

const postgresImage = "postgres:16.4-alpine"

// Starts a postgres container for the lifetime of the test and returns its
// connection URL. Skipped with -short.
func PostgresURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("exodus-gw"),
		postgres.WithUsername("exodus-gw"),
		postgres.WithPassword("exodus-gw"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	})
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string to container")

	return dsn
}

func Postgres(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", PostgresURL(t))
	require.NoError(t, err, "failed to connect to the database")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// Path of a fresh sqlite database file inside the test's temp dir
func SQLitePath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "exodus-gw.db")
}

func SQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+SQLitePath(t))
	require.NoError(t, err, "failed to open sqlite database")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}
