// Package parser decodes notebook documents into cells.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/models"
)

// NotebookExt is the file extension of notebook documents.
const NotebookExt = ".ipynb"

// ScriptExt is the file extension of generated scripts.
const ScriptExt = ".py"

type rawCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// Parse decodes raw notebook bytes. The document must be a JSON object with a
// "cells" array; markdown and code cells must carry a "source" that is either
// an array of strings or a single string.
func Parse(data []byte) (*models.Notebook, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidNotebook, err)
	}
	rawCells, ok := doc["cells"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"cells\"", apperr.ErrInvalidNotebook)
	}
	var cells []json.RawMessage
	if err := json.Unmarshal(rawCells, &cells); err != nil || cells == nil {
		return nil, fmt.Errorf("%w: \"cells\" is not an array", apperr.ErrInvalidNotebook)
	}

	nb := &models.Notebook{Cells: make([]models.Cell, 0, len(cells))}
	for i, raw := range cells {
		cell, err := parseCell(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", apperr.ErrMalformedCell, i, err)
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}

func parseCell(raw json.RawMessage) (models.Cell, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return models.Cell{}, fmt.Errorf("not an object")
	}
	var rc rawCell
	if err := json.Unmarshal(raw, &rc); err != nil {
		return models.Cell{}, err
	}
	cell := models.Cell{Type: models.CellType(rc.CellType)}
	if cell.Type != models.CellMarkdown && cell.Type != models.CellCode {
		// Other cell types produce no output, their source is not inspected.
		return cell, nil
	}
	src, err := decodeSource(rc.Source)
	if err != nil {
		return models.Cell{}, err
	}
	cell.Source = src
	return cell, nil
}

// decodeSource accepts both nbformat encodings of a multiline string.
func decodeSource(raw json.RawMessage) ([]string, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil, fmt.Errorf("missing source")
	}
	var elems []*string
	if err := json.Unmarshal(raw, &elems); err == nil && elems != nil {
		lines := make([]string, len(elems))
		for i, e := range elems {
			if e == nil {
				return nil, fmt.Errorf("source line %d is not a string", i)
			}
			lines[i] = *e
		}
		return lines, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return splitLines(joined), nil
	}
	return nil, fmt.Errorf("source is neither a string nor an array of strings")
}

// splitLines splits s after every newline, keeping the terminators.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// IsNotebook reports whether path carries the notebook extension.
func IsNotebook(path string) bool {
	return filepath.Ext(path) == NotebookExt
}

// ResolveOutputPath derives the script path by swapping the notebook extension.
func ResolveOutputPath(path string) (string, error) {
	if !IsNotebook(path) {
		return "", fmt.Errorf("%w: %s", apperr.ErrNotNotebook, path)
	}
	return strings.TrimSuffix(path, NotebookExt) + ScriptExt, nil
}
