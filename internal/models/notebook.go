// Package models defines the domain types for nb2py.
package models

import "time"

// CellType discriminates notebook cells.
type CellType string

const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
)

// Cell is one unit of a notebook: its type and its ordered source lines.
// Source lines keep whatever line terminators the document stored.
type Cell struct {
	Type   CellType `json:"cell_type"`
	Source []string `json:"source"`
}

// Notebook is the ordered sequence of cells of a notebook document.
type Notebook struct {
	Cells []Cell `json:"cells"`
}

// Conversion is the ledger record of one notebook converted to a script.
type Conversion struct {
	RunID            string    `json:"run_id"`
	NotebookPath     string    `json:"notebook_path"`
	ScriptPath       string    `json:"script_path"`
	NotebookChecksum string    `json:"notebook_checksum"`
	ScriptChecksum   string    `json:"script_checksum"`
	Policy           string    `json:"policy"`
	CodeCells        int       `json:"code_cells"`
	MarkdownCells    int       `json:"markdown_cells"`
	Imports          int       `json:"imports"` // header lines, relocated mutations included
	Warnings         []string  `json:"warnings"`
	ConvertedAt      time.Time `json:"converted_at"`
}

// NotebookMetadata is a lightweight representation returned by list operations.
type NotebookMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
