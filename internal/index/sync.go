package index

import (
	"context"
	"log/slog"

	"github.com/starford/nb2py/internal/models"
	"github.com/starford/nb2py/internal/storage"
)

// Converter turns a workspace notebook into a script and records it, or
// forgets a notebook that disappeared.
type Converter interface {
	ConvertData(ctx context.Context, path string, data []byte) (*models.Conversion, error)
	Forget(ctx context.Context, path string) error
}

// Sync walks the workspace and brings the ledger up to date:
//   - every notebook on disk is handed to the converter, which skips the
//     ones whose recorded conversion is still current
//   - notebooks removed from disk are forgotten
//
// Conversion failures are logged and do not abort the pass.
func Sync(ctx context.Context, db Ledger, store storage.Provider, conv Converter, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[m.Path] = struct{}{}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := conv.ConvertData(ctx, m.Path, data); err != nil {
			logger.Warn("sync: convert failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: converted", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := conv.Forget(ctx, p); err != nil {
			logger.Warn("sync: forget failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return nil
}
