// Package db is the embedded SQLite store behind the region lookup: it owns
// the province/city/county schema and the typed save and load operations
// over it.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/coolweather/internal/fsutil"
	"github.com/banshee-data/coolweather/internal/monitoring"
)

const (
	// DBFileName is the fixed name of the store inside the data directory.
	DBFileName = "cool_weather.db"

	// SchemaVersion is the latest schema version embedded in this build.
	SchemaVersion uint = 1
)

var (
	// ErrSchemaTooNew is returned when the store was written by a newer build.
	ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

	// ErrDirtySchema is returned when a previous migration failed mid-way.
	ErrDirtySchema = errors.New("database schema is in a dirty state")
)

// regionTables lists the tables owned by the schema, children first.
var regionTables = []string{"county", "city", "province"}

// DB is an open region store.
type DB struct {
	*sql.DB
	path string
}

// Options tunes the connection.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultOptions returns the options used by Open.
func DefaultOptions() Options {
	return Options{BusyTimeout: 5 * time.Second}
}

// Open opens the store at path, creating the file and schema on first use
// and running the destructive upgrade when the recorded schema version is
// older than SchemaVersion.
func Open(path string) (*DB, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions is Open with explicit connection options.
func OpenWithOptions(path string, opts Options) (*DB, error) {
	return openWithMigrations(path, opts, MigrationsFS())
}

// OpenInDir opens DBFileName inside dataDir, creating the directory first.
func OpenInDir(fsys fsutil.FileSystem, dataDir string, opts Options) (*DB, error) {
	path, err := PrepareDataDir(fsys, dataDir)
	if err != nil {
		return nil, err
	}
	return OpenWithOptions(path, opts)
}

// PrepareDataDir makes sure dataDir exists as a directory and returns the
// path of the store file inside it.
func PrepareDataDir(fsys fsutil.FileSystem, dataDir string) (string, error) {
	if fsys.Exists(dataDir) {
		info, err := fsys.Stat(dataDir)
		if err != nil {
			return "", fmt.Errorf("failed to stat data dir: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("data dir %s is not a directory", dataDir)
		}
	} else if err := fsys.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return filepath.Join(dataDir, DBFileName), nil
}

func openWithMigrations(path string, opts Options, migrations fs.FS) (*DB, error) {
	db, err := OpenDB(path, opts)
	if err != nil {
		return nil, err
	}

	if err := db.ensureSchema(migrations); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenDB opens the database and applies connection PRAGMAs without touching
// the schema. The migrate subcommand uses it so it can inspect a store in
// any state.
func OpenDB(path string, opts Options) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// buildDSN encodes the PRAGMAs into the DSN so every pooled connection gets
// them, not just the first.
func buildDSN(path string, opts Options) string {
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()),
		"_pragma=synchronous(NORMAL)",
		"_pragma=temp_store(MEMORY)",
	}
	// Escaped so '?', '#' and '%' in the path stay part of the file name.
	u := url.URL{Scheme: "file", Path: path, OmitHost: true, RawQuery: strings.Join(pragmas, "&")}
	return u.String()
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// ensureSchema compares the recorded schema version with the latest version
// in migrations and creates or upgrades the tables accordingly.
func (db *DB) ensureSchema(migrations fs.FS) error {
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		return err
	}

	current, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case dirty:
		return fmt.Errorf("%w (version %d)", ErrDirtySchema, current)
	case current == 0:
		return db.onCreate(migrations)
	case current < latest:
		return db.onUpgrade(migrations, current, latest)
	case current > latest:
		return fmt.Errorf("%w: store is at version %d, latest known is %d", ErrSchemaTooNew, current, latest)
	}
	return nil
}

// onCreate creates the province, city and county tables.
func (db *DB) onCreate(migrations fs.FS) error {
	if err := db.MigrateUp(migrations); err != nil {
		return fmt.Errorf("failed to create region tables: %w", err)
	}
	return nil
}

// onUpgrade drops every region table and recreates the schema at the latest
// version. All stored regions are lost.
func (db *DB) onUpgrade(migrations fs.FS, oldVersion, newVersion uint) error {
	monitoring.Logf("upgrading region schema from version %d to %d: dropping all region tables", oldVersion, newVersion)

	if err := db.dropRegionTables(); err != nil {
		return err
	}
	if err := db.MigrateForce(migrations, -1); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	return db.onCreate(migrations)
}

// Reset runs the upgrade path against the current schema: every region
// table is dropped and recreated empty.
func (db *DB) Reset() error {
	migrations := MigrationsFS()
	current, _, err := db.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	return db.onUpgrade(migrations, current, SchemaVersion)
}

func (db *DB) dropRegionTables() error {
	for _, table := range regionTables {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
