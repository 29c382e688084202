package db

import "sync"

// The shared store for callers that cannot have a *DB passed to them.
// Prefer opening one DB at startup and handing it down.
var (
	defaultMu sync.Mutex
	defaultDB *DB
)

// Default returns the process-wide store, opening it at path on the first
// successful call. Later calls return the same *DB and ignore path.
// Concurrent first callers block until one open finishes; a failed open is
// not remembered, so the next call tries again.
func Default(path string) (*DB, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDB != nil {
		return defaultDB, nil
	}

	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defaultDB = db
	return db, nil
}

// CloseDefault closes the process-wide store, if open, and forgets it.
func CloseDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDB == nil {
		return nil
	}
	err := defaultDB.Close()
	defaultDB = nil
	return err
}
