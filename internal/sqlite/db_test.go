package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"records",
		"quarantine",
		"mutation_seq",
		"mutations",
		"sync_log",
		"watermarks",
		"sync_meta",
		"leases",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	require.NoError(t, db.RunMigrations(), "migrations must be re-runnable")
}

func TestFileDatabaseIsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.db")
	db, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.Equal(t, path, db.Path())

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	var sync int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&sync))
	require.Equal(t, 2, sync, "synchronous must be FULL")
}

func TestCheckReportsClosedDatabase(t *testing.T) {
	db, err := New(":memory:")
	require.NoError(t, err)
	require.Empty(t, db.Path())
	require.NoError(t, db.Check(context.Background()))

	require.NoError(t, db.Close())
	err = db.Check(context.Background())
	require.Error(t, err)
}
