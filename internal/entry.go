// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/notes"
	"github.com/starford/folio/internal/notesync"
	"github.com/starford/folio/internal/querycache"
	"github.com/starford/folio/internal/session"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage/sqlstore"
	"github.com/starford/folio/internal/summarize"
)

const sseKeepalive = 15 * time.Second

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(sseKeepalive)
	defer broker.Close()

	coord := newCoordinator(cfg, db, logger, notesync.WithPublisher(broker))

	// A nil interface disables token auth; never pass a typed nil here.
	var verifier api.TokenVerifier
	if cfg.Auth.AuthEnabled() {
		verifier = session.NewVerifier(cfg.Auth.JWTSecret)
	}
	apiRouter := api.NewRouter(coord, verifier, cfg.Auth.DevUserID, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			logger.Warn("health: store unreachable", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if app.configPath != "" {
		g.Go(func() error {
			if err := WatchConfig(gCtx, app.configPath, level, logger); err != nil {
				logger.Warn("config: hot reload disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		return coord.RunJanitor(gCtx, cfg.Cache.SweepInterval)
	})

	// Start HTTP server.
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the config watcher stops with the server.
var errShutdown = errors.New("shutdown")

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app)

	db, err := sqlstore.Open(ctx, app.config.Store.Driver, app.config.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, logger); err != nil {
		return err
	}
	logger.Info("migrations applied", slog.String("store_driver", app.config.Store.Driver))
	return nil
}

// ServeMCP runs the MCP stdio server acting as the configured mcp.user_id.
// Logs go to the configured output, which must not be stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if app.config.MCP.UserID == "" {
		return fmt.Errorf("mcp.user_id is required")
	}
	logger := newLogger(app)

	db, err := openStore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	coord := newCoordinator(app.config, db, logger)
	janitorCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = coord.RunJanitor(janitorCtx, app.config.Cache.SweepInterval) }()

	srv := mcpserver.New(coord, app.config.MCP.UserID)
	logger.Info("mcp: serving on stdio", slog.String("user_id", app.config.MCP.UserID))
	return srv.ServeStdio()
}

func newLogger(app *application) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{Level: app.config.App.LogLevel}))
	slog.SetDefault(logger)
	return logger
}

func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*sqlstore.DB, error) {
	db, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if cfg.Store.Migrate {
		if err := db.Migrate(ctx, logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newCoordinator(cfg *Config, db *sqlstore.DB, logger *slog.Logger, extra ...notesync.Option) *notesync.Coordinator {
	gateway := summarize.NewClient(cfg.Summarizer.APIKey,
		summarize.WithEndpoint(cfg.Summarizer.Endpoint),
		summarize.WithTimeout(cfg.Summarizer.Timeout),
	)
	if cfg.Summarizer.APIKey == "" {
		logger.Warn("summarize: no api key configured, summaries will fail")
	}

	opts := []notesync.Option{
		notesync.WithLogger(logger),
		notesync.WithSummarizer(gateway),
		notesync.WithIdleTTL(cfg.Cache.UserIdleTTL),
		notesync.WithCacheOptions(
			querycache.WithStaleAfter(cfg.Cache.StaleAfter),
			querycache.WithGCAfter(cfg.Cache.GCAfter),
			querycache.WithLogger(logger),
		),
	}
	return notesync.New(notes.NewService(db), append(opts, extra...)...)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
