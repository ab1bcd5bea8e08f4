package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	NotebookPath string `json:"notebook_path"`
	ScriptPath   string `json:"script_path"`
	Snippet      string `json:"snippet"`
}

const defaultListLimit = 50

// ErrUnknownSort is returned by ListConversions for a sort key outside the whitelist.
var ErrUnknownSort = errors.New("index: unknown sort")

// sortColumns whitelists ListConversions sort keys.
var sortColumns = map[string]string{
	"":             "converted_at DESC",
	"converted_at": "converted_at DESC",
	"path":         "notebook_path ASC",
	"warnings":     "json_array_length(warnings) DESC, notebook_path ASC",
}

const conversionColumns = `notebook_path, script_path, run_id, notebook_checksum, script_checksum, policy,
	code_cells, markdown_cells, imports, warnings, converted_at`

// UpsertConversion inserts or replaces a conversion and its FTS entry within a transaction.
func (db *DB) UpsertConversion(c models.Conversion, script string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	warnings := c.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, _ := json.Marshal(warnings)

	_, err = tx.Exec(`
		INSERT INTO conversions (notebook_path, script_path, run_id, notebook_checksum, script_checksum, policy,
			code_cells, markdown_cells, imports, warnings, script, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notebook_path) DO UPDATE SET
			script_path       = excluded.script_path,
			run_id            = excluded.run_id,
			notebook_checksum = excluded.notebook_checksum,
			script_checksum   = excluded.script_checksum,
			policy            = excluded.policy,
			code_cells        = excluded.code_cells,
			markdown_cells    = excluded.markdown_cells,
			imports           = excluded.imports,
			warnings          = excluded.warnings,
			script            = excluded.script,
			converted_at      = excluded.converted_at
	`, c.NotebookPath, c.ScriptPath, c.RunID, c.NotebookChecksum, c.ScriptChecksum, c.Policy,
		c.CodeCells, c.MarkdownCells, c.Imports, string(warningsJSON), script, c.ConvertedAt)
	if err != nil {
		return fmt.Errorf("index: upsert conversion: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, c.NotebookPath, c.ScriptPath, script); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteConversion removes a conversion and its FTS entry.
func (db *DB) DeleteConversion(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM conversions WHERE notebook_path = ?`, path); err != nil {
		return fmt.Errorf("index: delete conversion: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the notebook checksum recorded at the last conversion,
// or empty string if the notebook was never converted.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT notebook_checksum FROM conversions WHERE notebook_path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetConversion returns the ledger record of a notebook.
func (db *DB) GetConversion(path string) (*models.Conversion, error) {
	row := db.conn.QueryRow(`SELECT `+conversionColumns+` FROM conversions WHERE notebook_path = ?`, path)
	c, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get conversion: %w", err)
	}
	return c, nil
}

// GetScript returns the script text generated for a notebook.
func (db *DB) GetScript(path string) (string, error) {
	var script string
	err := db.conn.QueryRow(`SELECT script FROM conversions WHERE notebook_path = ?`, path).Scan(&script)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("index: get script: %w", err)
	}
	return script, nil
}

// ListConversions returns a page of conversions and the total count.
func (db *DB) ListConversions(limit, offset int, sort string) ([]models.Conversion, int, error) {
	order, ok := sortColumns[sort]
	if !ok {
		return nil, 0, fmt.Errorf("%w %q", ErrUnknownSort, sort)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM conversions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count conversions: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+conversionColumns+` FROM conversions ORDER BY `+order+` LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list conversions: %w", err)
	}
	defer rows.Close()

	out := []models.Conversion{}
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// AllChecksums returns notebook path → notebook checksum for every record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT notebook_path, notebook_checksum FROM conversions`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (*models.Conversion, error) {
	var (
		c        models.Conversion
		warnings string
	)
	if err := s.Scan(&c.NotebookPath, &c.ScriptPath, &c.RunID, &c.NotebookChecksum, &c.ScriptChecksum, &c.Policy,
		&c.CodeCells, &c.MarkdownCells, &c.Imports, &warnings, &c.ConvertedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(warnings), &c.Warnings); err != nil || c.Warnings == nil {
		c.Warnings = []string{}
	}
	return &c, nil
}
