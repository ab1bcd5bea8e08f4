// Package index provides the SQLite-backed conversion ledger with optional
// FTS5 full-text search over generated scripts.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversions (
	notebook_path     TEXT PRIMARY KEY,
	script_path       TEXT NOT NULL,
	run_id            TEXT NOT NULL DEFAULT '',
	notebook_checksum TEXT NOT NULL DEFAULT '',
	script_checksum   TEXT NOT NULL DEFAULT '',
	policy            TEXT NOT NULL DEFAULT '',
	code_cells        INTEGER NOT NULL DEFAULT 0,
	markdown_cells    INTEGER NOT NULL DEFAULT 0,
	imports           INTEGER NOT NULL DEFAULT 0,
	warnings          TEXT NOT NULL DEFAULT '[]',
	script            TEXT NOT NULL DEFAULT '',
	converted_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conversions_converted_at ON conversions(converted_at);
`

// DB wraps a sql.DB with ledger-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
