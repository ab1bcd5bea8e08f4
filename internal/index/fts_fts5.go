//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS scripts_fts USING fts5(
			notebook_path UNINDEXED,
			script_path UNINDEXED,
			script,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, notebookPath, scriptPath, script string) error {
	_, _ = tx.Exec(`DELETE FROM scripts_fts WHERE notebook_path = ?`, notebookPath)
	_, err := tx.Exec(`INSERT INTO scripts_fts (notebook_path, script_path, script) VALUES (?, ?, ?)`,
		notebookPath, scriptPath, script)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, notebookPath string) {
	_, _ = tx.Exec(`DELETE FROM scripts_fts WHERE notebook_path = ?`, notebookPath)
}

// Search performs an FTS5 full-text search over generated scripts.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT notebook_path,
		       script_path,
		       snippet(scripts_fts, 2, '<b>', '</b>', '...', 32)
		FROM scripts_fts
		WHERE scripts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NotebookPath, &r.ScriptPath, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
