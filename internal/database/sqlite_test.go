package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "recovery.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
	require.NoError(t, db.Close())

	// Reopening an existing database is a no-op migration.
	again, err := OpenSQLite(path)
	require.NoError(t, err)

	var version int
	require.NoError(t, again.QueryRow("PRAGMA user_version").Scan(&version))
	require.Equal(t, sqliteSchemaVersion, version)
	require.NoError(t, again.Close())
}
