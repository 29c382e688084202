package db

import (
	"database/sql"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/coolweather/internal/testutil"
)

// setupTestDB opens a fresh store with the embedded schema.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// migrationsWithV2 returns the embedded migrations plus a version 2 that
// adds a column to county.
func migrationsWithV2(t *testing.T) fs.FS {
	t.Helper()

	mapFS := fstest.MapFS{}
	entries, err := fs.ReadDir(MigrationsFS(), ".")
	require.NoError(t, err)
	for _, e := range entries {
		data, err := fs.ReadFile(MigrationsFS(), e.Name())
		require.NoError(t, err)
		mapFS[e.Name()] = &fstest.MapFile{Data: data}
	}

	mapFS["000002_add_county_weather_code.up.sql"] = &fstest.MapFile{
		Data: []byte(`ALTER TABLE county ADD COLUMN weather_code TEXT;`),
	}
	mapFS["000002_add_county_weather_code.down.sql"] = &fstest.MapFile{
		Data: []byte(`ALTER TABLE county DROP COLUMN weather_code;`),
	}
	return mapFS
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func columnNames(t *testing.T, db *DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}
