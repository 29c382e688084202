package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/coolweather/internal/fsutil"
	"github.com/banshee-data/coolweather/internal/testutil"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := testutil.TempDBPath(t)

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file should exist after Open")

	for _, table := range []string{"province", "city", "county"} {
		assert.True(t, tableExists(t, db.DB, table), "table %s should exist", table)
	}

	assert.Equal(t, []string{"id", "province_name", "province_code"}, columnNames(t, db, "province"))
	assert.Equal(t, []string{"id", "city_name", "city_code", "province_id"}, columnNames(t, db, "city"))
	assert.Equal(t, []string{"id", "county_name", "county_code", "city_id"}, columnNames(t, db, "county"))

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	assert.False(t, dirty)
	assert.Equal(t, path, db.Path())
}

func TestOpen_Idempotent(t *testing.T) {
	path := testutil.TempDBPath(t)

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.SaveProvince(&Province{Name: "Zhejiang", Code: "17"}))
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err, "reopening an initialised store must not fail")
	defer db2.Close()

	var tables int
	err = db2.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('province','city','county')`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 3, tables)

	assert.Equal(t, 1, countRows(t, db2, "schema_migrations"))
	assert.Equal(t, 1, countRows(t, db2, "province"), "reopen must keep existing rows")
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous, "1 = NORMAL")

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore, "2 = MEMORY")
}

func TestOpenWithOptions_BusyTimeout(t *testing.T) {
	db, err := OpenWithOptions(testutil.TempDBPath(t), Options{BusyTimeout: 250 * time.Millisecond})
	require.NoError(t, err)
	defer db.Close()

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 250, busyTimeout)
}

func TestBuildDSN(t *testing.T) {
	d := buildDSN("/tmp/test.db", DefaultOptions())
	assert.Contains(t, d, "file:/tmp/test.db?")
	assert.Contains(t, d, "_pragma=journal_mode(WAL)")
	assert.Contains(t, d, "_pragma=busy_timeout(5000)")
}

func TestBuildDSN_EscapesPath(t *testing.T) {
	d := buildDSN("/data/weather#1/a%20b/q?x.db", DefaultOptions())
	assert.Contains(t, d, "file:/data/weather%231/a%2520b/q%3Fx.db?_pragma=")
}

func TestOpen_PathWithURIChars(t *testing.T) {
	for _, dir := range []string{"weather#1", "q?x", "a%20b", "with space"} {
		t.Run(dir, func(t *testing.T) {
			parent := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(parent, dir), 0o755))
			path := filepath.Join(parent, dir, DBFileName)

			db, err := Open(path)
			require.NoError(t, err)
			defer db.Close()
			require.NoError(t, db.SaveProvince(&Province{Name: "Qinghai", Code: "27"}))

			_, err = os.Stat(path)
			require.NoError(t, err, "store must live at the requested path")
			assert.Equal(t, path, db.Path())

			entries, err := os.ReadDir(parent)
			require.NoError(t, err)
			require.Len(t, entries, 1, "no stray files next to the data dir")
			assert.Equal(t, dir, entries[0].Name())
		})
	}
}

func TestPrepareDataDir(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	path, err := PrepareDataDir(mfs, "/data/databases")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/databases", DBFileName), path)
	assert.True(t, mfs.Exists("/data/databases"))

	path, err = PrepareDataDir(mfs, "/data/databases")
	require.NoError(t, err, "existing dir is reused")
	assert.Equal(t, filepath.Join("/data/databases", DBFileName), path)

	require.NoError(t, mfs.WriteFile("/data/plain", []byte("x"), 0o644))
	_, err = PrepareDataDir(mfs, "/data/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestOpenInDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "files", "databases")

	db, err := OpenInDir(fsutil.OSFileSystem{}, dataDir, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, filepath.Join(dataDir, DBFileName), db.Path())
	_, err = os.Stat(filepath.Join(dataDir, DBFileName))
	assert.NoError(t, err)
}

func TestOpenInDir_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := OpenInDir(fsutil.OSFileSystem{}, file, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestOpen_UnreachablePath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", DBFileName))
	testutil.AssertError(t, err)
}

func TestOpen_AdoptsExistingTables(t *testing.T) {
	path := testutil.TempDBPath(t)

	// A store created before schema_migrations existed.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		create table province (id integer primary key autoincrement, province_name text, province_code text);
		create table city (id integer primary key autoincrement, city_name text, city_code text, province_id integer);
		create table county (id integer primary key autoincrement, county_name text, county_code text, city_id integer);
		insert into province (province_name, province_code) values ('Anhui', '12');
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	provinces := db.LoadProvinces()
	require.False(t, provinces.Partial())
	require.Len(t, provinces.Items, 1)
	assert.Equal(t, "Anhui", provinces.Items[0].Name)
}

func TestOpen_UpgradeDropsAllRows(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	path := testutil.TempDBPath(t)

	db1, err := Open(path)
	require.NoError(t, err)
	p := &Province{Name: "Jiangsu", Code: "10"}
	require.NoError(t, db1.SaveProvince(p))
	c := &City{Name: "Nanjing", Code: "1001", ProvinceID: p.ID}
	require.NoError(t, db1.SaveCity(c))
	require.NoError(t, db1.SaveCounty(&County{Name: "Gaochun", Code: "100101", CityID: c.ID}))
	require.NoError(t, db1.Close())

	db2, err := openWithMigrations(path, DefaultOptions(), migrationsWithV2(t))
	require.NoError(t, err)
	defer db2.Close()

	version, dirty, err := db2.MigrateVersion(migrationsWithV2(t))
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"province", "city", "county"} {
		assert.Zero(t, countRows(t, db2, table), "upgrade should empty %s", table)
	}
	assert.Contains(t, columnNames(t, db2, "county"), "weather_code")
	assert.Equal(t, 1, logs.Count("upgrading region schema from version 1 to 2"))

	// The extra column is ignored by the loader.
	require.NoError(t, db2.SaveCounty(&County{Name: "Lishui", Code: "100102", CityID: 7}))
	counties := db2.LoadCounties(7)
	require.False(t, counties.Partial())
	require.Len(t, counties.Items, 1)
	assert.Equal(t, "Lishui", counties.Items[0].Name)
}

func TestOpen_SchemaTooNew(t *testing.T) {
	path := testutil.TempDBPath(t)

	db1, err := openWithMigrations(path, DefaultOptions(), migrationsWithV2(t))
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaTooNew), "got %v", err)
}

func TestOpen_DirtySchema(t *testing.T) {
	path := testutil.TempDBPath(t)

	db1, err := Open(path)
	require.NoError(t, err)
	_, err = db1.Exec(`UPDATE schema_migrations SET dirty = 1`)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirtySchema), "got %v", err)
}

func TestReset(t *testing.T) {
	testutil.CaptureLogs(t)
	db := setupTestDB(t)

	require.NoError(t, db.SaveProvince(&Province{Name: "Fujian", Code: "14"}))
	require.NoError(t, db.SaveCity(&City{Name: "Fuzhou", Code: "1401", ProvinceID: 1}))

	require.NoError(t, db.Reset())

	assert.Zero(t, countRows(t, db, "province"))
	assert.Zero(t, countRows(t, db, "city"))
	assert.Zero(t, countRows(t, db, "county"))

	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	// AUTOINCREMENT restarts because the tables were recreated.
	p := &Province{Name: "Fujian", Code: "14"}
	require.NoError(t, db.SaveProvince(p))
	assert.Equal(t, 1, p.ID)
}
