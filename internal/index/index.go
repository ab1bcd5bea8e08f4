package index

import "github.com/starford/nb2py/internal/models"

// Ledger defines the conversion ledger operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Ledger interface {
	UpsertConversion(c models.Conversion, script string) error
	DeleteConversion(path string) error
	GetChecksum(path string) (string, error)
	GetConversion(path string) (*models.Conversion, error)
	GetScript(path string) (string, error)
	ListConversions(limit, offset int, sort string) ([]models.Conversion, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ Ledger = (*DB)(nil)
