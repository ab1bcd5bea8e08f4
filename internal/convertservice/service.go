// Package convertservice coordinates workspace storage, the transcoder and
// the conversion ledger.
package convertservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/checksum"
	"github.com/starford/nb2py/internal/index"
	"github.com/starford/nb2py/internal/models"
	"github.com/starford/nb2py/internal/parser"
	"github.com/starford/nb2py/internal/storage"
	"github.com/starford/nb2py/internal/transcoder"
)

// Service converts workspace notebooks and records the results.
type Service struct {
	store  storage.Provider
	db     index.Ledger
	tr     *transcoder.Transcoder
	logger *slog.Logger
}

var _ index.Converter = (*Service)(nil)

// NewService creates a new conversion service. db may be nil, in which case
// nothing is recorded and every notebook is converted.
func NewService(store storage.Provider, db index.Ledger, tr *transcoder.Transcoder, logger *slog.Logger) *Service {
	if tr == nil {
		tr = transcoder.New(transcoder.WithLogger(logger))
	}
	return &Service{store: store, db: db, tr: tr, logger: logger}
}

// Policy returns the recovery policy of the underlying transcoder.
func (s *Service) Policy() transcoder.Policy {
	return s.tr.Policy()
}

// ConvertBytes parses and transcodes a raw notebook without touching the
// workspace.
func (s *Service) ConvertBytes(_ context.Context, data []byte) (*transcoder.Result, error) {
	nb, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.tr.Transcode(nb)
}

// ConvertFile reads a workspace notebook and converts it. An explicit
// request always reconverts, even when the ledger says it is up to date.
func (s *Service) ConvertFile(ctx context.Context, path string) (*models.Conversion, error) {
	if !parser.IsNotebook(path) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotNotebook, path)
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.convert(ctx, path, data, true)
}

// ConvertData converts notebook content found at path, writes the script next
// to it and records the conversion. When the recorded conversion is still
// current it is returned without converting again.
func (s *Service) ConvertData(ctx context.Context, path string, data []byte) (*models.Conversion, error) {
	return s.convert(ctx, path, data, false)
}

// upToDate returns the recorded conversion of path when it was produced from
// the same notebook content under the current policy and its script is still
// on disk unmodified.
func (s *Service) upToDate(path, notebookChecksum string) (*models.Conversion, bool) {
	if s.db == nil {
		return nil, false
	}
	prev, err := s.db.GetConversion(path)
	if err != nil {
		return nil, false
	}
	if prev.NotebookChecksum != notebookChecksum || prev.Policy != string(s.tr.Policy()) {
		return nil, false
	}
	script, err := s.store.Read(prev.ScriptPath)
	if err != nil || checksum.Sum(script) != prev.ScriptChecksum {
		return nil, false
	}
	return prev, true
}

func (s *Service) convert(ctx context.Context, path string, data []byte, force bool) (*models.Conversion, error) {
	scriptPath, err := parser.ResolveOutputPath(path)
	if err != nil {
		return nil, err
	}
	cs := checksum.Sum(data)

	if !force {
		if prev, ok := s.upToDate(path, cs); ok {
			s.logger.Debug("conversion up to date", slog.String("path", path))
			return prev, nil
		}
	}

	res, err := s.ConvertBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	if err := s.store.Write(scriptPath, []byte(res.Script)); err != nil {
		return nil, err
	}

	c := models.Conversion{
		RunID:            uuid.NewString(),
		NotebookPath:     path,
		ScriptPath:       scriptPath,
		NotebookChecksum: cs,
		ScriptChecksum:   checksum.SumString(res.Script),
		Policy:           string(s.tr.Policy()),
		CodeCells:        res.CodeCells,
		MarkdownCells:    res.MarkdownCells,
		Imports:          len(res.Header),
		Warnings:         warningStrings(res.Warnings),
		ConvertedAt:      time.Now().UTC(),
	}
	if s.db != nil {
		if err := s.db.UpsertConversion(c, res.Script); err != nil {
			return nil, err
		}
	}

	s.logger.Info("converted",
		slog.String("path", path),
		slog.String("script", scriptPath),
		slog.Int("warnings", len(c.Warnings)))
	return &c, nil
}

// Forget removes a notebook from the ledger. The generated script stays on disk.
func (s *Service) Forget(_ context.Context, path string) error {
	if s.db == nil {
		return nil
	}
	return s.db.DeleteConversion(path)
}

// GetConversion returns the recorded conversion of a notebook.
func (s *Service) GetConversion(_ context.Context, path string) (*models.Conversion, error) {
	if s.db == nil {
		return nil, apperr.ErrNotFound
	}
	return s.db.GetConversion(path)
}

// GetScript returns the script recorded for a notebook.
func (s *Service) GetScript(_ context.Context, path string) (string, error) {
	if s.db == nil {
		return "", apperr.ErrNotFound
	}
	return s.db.GetScript(path)
}

// ListConversions returns a page of recorded conversions.
func (s *Service) ListConversions(_ context.Context, limit, offset int, sort string) ([]models.Conversion, int, error) {
	if s.db == nil {
		return []models.Conversion{}, 0, nil
	}
	return s.db.ListConversions(limit, offset, sort)
}

// Search delegates full-text search over generated scripts to the ledger.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return []index.SearchResult{}, nil
	}
	return s.db.Search(query, limit)
}

func warningStrings(ws []transcoder.Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
