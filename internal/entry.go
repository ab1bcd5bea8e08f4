// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nb2py/internal/api"
	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/convertservice"
	"github.com/starford/nb2py/internal/index"
	"github.com/starford/nb2py/internal/mcpserver"
	"github.com/starford/nb2py/internal/parser"
	"github.com/starford/nb2py/internal/sse"
	"github.com/starford/nb2py/internal/storage"
	"github.com/starford/nb2py/internal/transcoder"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// workspace bundles the serve/mcp dependencies.
type workspace struct {
	store *storage.FS
	db    *index.DB
	svc   *convertservice.Service
}

func openWorkspace(cfg *Config, logger *slog.Logger) (*workspace, error) {
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	tr := transcoder.New(
		transcoder.WithPolicy(cfg.Convert.TranscoderPolicy()),
		transcoder.WithLogger(logger),
	)
	return &workspace{
		store: store,
		db:    db,
		svc:   convertservice.NewService(store, db, tr, logger),
	}, nil
}

// Run starts the workspace service: initial sync, watcher, HTTP API and SSE.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("policy", cfg.Convert.Policy),
		slog.Bool("watch", cfg.Convert.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ws, err := openWorkspace(cfg, logger)
	if err != nil {
		return err
	}
	defer ws.db.Close()

	// Run initial sync.
	if err := index.Sync(ctx, ws.db, ws.store, ws.svc, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(ws.svc, cfg.Auth.API(), broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := ws.db.AllChecksums(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Convert.Watch {
		g.Go(func() error {
			return index.Watch(gCtx, ws.db, ws.store, ws.svc, ws.store.Root(), logger, broker.PublishConversionEvent)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	ws, err := openWorkspace(cfg, logger)
	if err != nil {
		return err
	}
	defer ws.db.Close()

	if err := index.Sync(ctx, ws.db, ws.store, ws.svc, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting", slog.String("workspace_path", cfg.Workspace.Path))
	return mcpserver.New(ws.svc, app.version).ServeStdio()
}

// ConvertRequest describes a one-shot conversion of notebooks outside the
// workspace.
type ConvertRequest struct {
	Paths []string
	// Output overrides the script path; only valid with a single notebook.
	Output string
	// Stdout prints scripts instead of writing files.
	Stdout bool
}

// Convert converts each notebook in req and writes the script next to it.
// Every notebook is attempted; the failures are returned joined.
func Convert(ctx context.Context, req ConvertRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	if len(req.Paths) == 0 {
		return errors.New("at least one notebook is required")
	}
	if req.Output != "" && len(req.Paths) > 1 {
		return errors.New("--output needs exactly one notebook")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	tr := transcoder.New(
		transcoder.WithPolicy(cfg.Convert.TranscoderPolicy()),
		transcoder.WithLogger(logger),
	)
	svc := convertservice.NewService(nil, nil, tr, logger)

	var errs []error
	for _, path := range req.Paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := convertOne(ctx, svc, path, req, app.stdout, logger); err != nil {
			logger.Error("conversion failed", slog.String("path", path), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func convertOne(ctx context.Context, svc *convertservice.Service, path string, req ConvertRequest, stdout io.Writer, logger *slog.Logger) error {
	out := req.Output
	if out == "" {
		var err error
		if out, err = parser.ResolveOutputPath(path); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return err
	}
	res, err := svc.ConvertBytes(ctx, data)
	if err != nil {
		return err
	}

	if req.Stdout {
		_, err := io.WriteString(stdout, res.Script)
		return err
	}

	abs, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	dir, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return err
	}
	if err := dir.Write(filepath.Base(abs), []byte(res.Script)); err != nil {
		return err
	}
	logger.Info("converted",
		slog.String("path", path),
		slog.String("script", out),
		slog.Int("warnings", len(res.Warnings)))
	return nil
}
