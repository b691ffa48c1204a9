// Package db stores evaluation runs and per-trajectory results in sqlite.
package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/blinkfit/internal/timeutil"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// OpenDB opens the database without migrating it.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized and makes ":memory:"
	// databases behave like files.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &DB{DB: conn, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used for run timestamps.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// Clock returns the clock used for run timestamps.
func (db *DB) Clock() timeutil.Clock { return db.clock }
