// Package db opens the booth database, creates its schema and runs
// periodic maintenance.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS device_auth (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL UNIQUE,
    password_hash BYTEA NOT NULL,
    device_name TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS photo_sessions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    session_name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    selected_photo_id TEXT,
    download_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_photo_sessions_expires_at ON photo_sessions(expires_at);

CREATE TABLE IF NOT EXISTS temp_photos (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES photo_sessions(id) ON DELETE CASCADE,
    object_key TEXT NOT NULL,
    digest TEXT NOT NULL,
    size BIGINT NOT NULL,
    photo_order INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_temp_photos_session_id ON temp_photos(session_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS device_auth (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL UNIQUE,
    password_hash BLOB NOT NULL,
    device_name TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_login TIMESTAMP
);

CREATE TABLE IF NOT EXISTS photo_sessions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    session_name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    selected_photo_id TEXT,
    download_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_photo_sessions_expires_at ON photo_sessions(expires_at);

CREATE TABLE IF NOT EXISTS temp_photos (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES photo_sessions(id) ON DELETE CASCADE,
    object_key TEXT NOT NULL,
    digest TEXT NOT NULL,
    size INTEGER NOT NULL,
    photo_order INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_temp_photos_session_id ON temp_photos(session_id);
`

// Open connects to the database named by dsn. "sqlite://path" (or
// "sqlite::memory:") selects SQLite, anything else is handed to the
// Postgres driver.
func Open(dsn string) (*sql.DB, error) {
	if path, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		return InitSQLite(path)
	}
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return InitSQLite(path)
	}
	return InitPostgres(dsn)
}

// InitPostgres opens a Postgres connection and creates the schema.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// InitSQLite opens (or creates) the SQLite database at path and
// creates the schema. A single connection is kept so ":memory:"
// databases survive between queries.
func InitSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}
	db, err := sql.Open("sqlite3", path+sqliteParams(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

func sqliteParams(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return sep + "_foreign_keys=on&_busy_timeout=5000"
}
