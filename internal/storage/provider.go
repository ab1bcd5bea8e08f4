// Package storage defines the workspace file-system abstraction: the source
// of notebook documents and the destination of generated scripts.
package storage

import "github.com/starford/nb2py/internal/models"

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns metadata for every notebook under dir (relative to the workspace root).
	List(dir string) ([]models.NotebookMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the workspace root).
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path (relative to the workspace root).
	Write(path string, content []byte) error
}
