// Package testutil provides shared test helpers for setting up workspaces,
// ledgers and notebooks.
package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nb2py/internal/index"
	"github.com/starford/nb2py/internal/storage"
)

// TestDB creates a temporary SQLite ledger that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nb2py-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage.Provider.
func TestWorkspace(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Cell is a notebook cell in its on-disk shape.
type Cell struct {
	Type   string   `json:"cell_type"`
	Source []string `json:"source"`
}

// Code returns a code cell with the given source lines.
func Code(lines ...string) Cell {
	return Cell{Type: "code", Source: lines}
}

// Markdown returns a markdown cell with the given source lines.
func Markdown(lines ...string) Cell {
	return Cell{Type: "markdown", Source: lines}
}

// Notebook encodes cells as notebook JSON.
func Notebook(t *testing.T, cells ...Cell) []byte {
	t.Helper()
	if cells == nil {
		cells = []Cell{}
	}
	data, err := json.Marshal(map[string]any{
		"cells":          cells,
		"nbformat":       4,
		"nbformat_minor": 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// WriteNotebook writes notebook JSON under the workspace dir and returns its
// absolute path.
func WriteNotebook(t *testing.T, dir, rel string, data []byte) string {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
