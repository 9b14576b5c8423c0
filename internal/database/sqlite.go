// Package database implements the SQLite-backed metadata store: connection
// setup, the query builder, record and health persistence, and the tracker
// and misc tables. The FTS index and the has_data flag are maintained by
// schema triggers (see migrations), never by code in this package.
//
// FTS5 requires building with -tags sqlite_fts5.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"tms-go/internal/database/migrations"
	"tms-go/internal/rank"
)

// DriverName is the database/sql driver this package registers: SQLite with
// the search_rank UDF bound on every new connection.
const DriverName = "sqlite3_tms"

var registerDriver sync.Once

// Options control connection setup.
type Options struct {
	// DisableSync turns off journalling and synchronous writes for bulk
	// import runs. Unsafe: a crash mid-run loses data.
	DisableSync bool
}

// OpenConnection opens and configures a SQLite connection pool. path can be
// a file path or ":memory:" for tests. Every connection gets WAL
// journalling, NORMAL fsync, in-memory temp storage, foreign keys, a busy
// timeout, and the search_rank function.
func OpenConnection(path string, opts Options) (*sql.DB, error) {
	registerDriver.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				// pure=true: SQLite may cache and reorder calls.
				return conn.RegisterFunc("search_rank", rank.Score, true)
			},
		})
	})

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if opts.DisableSync {
		pragmas = []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 10000",
			"PRAGMA journal_mode = OFF",
			"PRAGMA synchronous = OFF",
			"PRAGMA temp_store = MEMORY",
		}
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", p, err)
		}
	}

	return db, nil
}

// MetadataDB is the SQLite implementation of the metadata store.
type MetadataDB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the store at path. Migrations are not applied
// here; callers decide between CheckMigrations and MigrateUp.
func Open(path string, opts Options) (*MetadataDB, error) {
	db, err := OpenConnection(path, opts)
	if err != nil {
		return nil, err
	}
	return &MetadataDB{db: db, path: path}, nil
}

// FromDB wraps an existing connection pool. The caller is responsible for
// having configured it through OpenConnection.
func FromDB(db *sql.DB) *MetadataDB {
	return &MetadataDB{db: db}
}

// Path returns the database file path (":memory:" for in-memory stores).
func (d *MetadataDB) Path() string { return d.path }

// CheckMigrations verifies the schema is at the latest embedded version.
func (d *MetadataDB) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(d.db)
}

// MigrateUp brings the schema to the latest embedded version.
func (d *MetadataDB) MigrateUp() error {
	return migrations.MigrateUp(d.db)
}

// BackupTo writes a complete copy of the store to destPath via VACUUM INTO.
func (d *MetadataDB) BackupTo(destPath string) error {
	if _, err := d.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// GetMisc reads a key from the misc table; a missing key returns "".
func (d *MetadataDB) GetMisc(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM misc WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading misc key %q: %w", key, err)
	}
	return value, nil
}

// SetMisc writes a key in the misc table.
func (d *MetadataDB) SetMisc(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO misc(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("writing misc key %q: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (d *MetadataDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
