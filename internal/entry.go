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
	"golang.org/x/sync/errgroup"

	"github.com/starford/tripwatch/internal/api"
	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/mcpserver"
	"github.com/starford/tripwatch/internal/schedule"
	"github.com/starford/tripwatch/internal/source"
	"github.com/starford/tripwatch/internal/sse"
	"github.com/starford/tripwatch/internal/store"
	"github.com/starford/tripwatch/internal/telegram"
	"github.com/starford/tripwatch/internal/tripservice"
	pkgconfig "github.com/starford/tripwatch/pkg/config"
)

// core holds everything a cycle needs, shared by all run modes.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	level    *slog.LevelVar
	store    store.Store
	gate     *gate.Gate
	client   *telegram.Client
	orch     *cycle.Orchestrator
	svc      *tripservice.Service
	cfgPath  string
	shutdown func()
}

func setup(ctx context.Context, opts []Option, cycleOpts ...cycle.Option) (*core, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("agenda_url", cfg.Source.AgendaURL),
		slog.String("channel", cfg.Telegram.Channel),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("interval", cfg.Schedule.Interval.String()),
		slog.Int("max_per_category", cfg.Gate.MaxPerCategory),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}

	agenda, err := source.NewAgenda(source.Config{
		AgendaURL: cfg.Source.AgendaURL,
		BaseURL:   cfg.Source.BaseURL,
		Timeout:   cfg.Source.Timeout,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init source: %w", err)
	}

	client := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
	g := gate.New(cfg.Gate.MaxPerCategory)

	orch := cycle.New(cycle.Config{
		Destination:   cfg.Telegram.Channel,
		FetchTimeout:  cfg.Source.Timeout,
		NotifyTimeout: cfg.Telegram.Timeout,
	},
		agenda,
		st,
		g,
		telegram.NewNotifier(client),
		telegram.NewReporter(client, cfg.Telegram.MaintainerChatID, logger),
		append([]cycle.Option{cycle.WithLogger(logger)}, cycleOpts...)...,
	)

	return &core{
		cfg:     cfg,
		logger:  logger,
		level:   level,
		store:   st,
		gate:    g,
		client:  client,
		orch:    orch,
		svc:     tripservice.New(st, orch),
		cfgPath: app.configPath,
		shutdown: func() {
			if err := st.Close(); err != nil {
				logger.Warn("close store failed", slog.String("error", err.Error()))
			}
		},
	}, nil
}

func openStore(ctx context.Context, cfg StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return store.NewMemory(), nil
	case DriverSQLite:
		return store.Open(ctx, store.DialectSQLite, cfg.DSN)
	case DriverMySQL:
		return store.Open(ctx, store.DialectMySQL, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// reload applies the hot-reloadable settings from the config file.
func (rt *core) reload() {
	next := NewDefaultConfig()
	if err := pkgconfig.Load(rt.cfgPath, next); err != nil {
		rt.logger.Warn("config reload failed, keeping current settings", slog.String("error", err.Error()))
		return
	}
	rt.level.Set(next.App.LogLevel)
	rt.gate.SetLimit(next.Gate.MaxPerCategory)
	rt.logger.Info("Configuration reloaded",
		slog.String("log_level", next.App.LogLevel.String()),
		slog.Int("max_per_category", rt.gate.Limit()))
}

// Run starts the daemon: scheduled cycles, the HTTP API, bot commands and
// config hot reload, until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(ctx, opts, cycle.WithObserver(broker))
	if err != nil {
		return err
	}
	defer rt.shutdown()

	cfg := rt.cfg
	logger := rt.logger

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	api.MountHealth(r, rt.svc)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Scheduled cycles.
	g.Go(func() error {
		return schedule.Run(gCtx, rt.orch, schedule.Config{
			Interval:   cfg.Schedule.Interval,
			FirstDelay: cfg.Schedule.FirstDelay,
		}, logger)
	})

	// Bot commands.
	if cfg.Telegram.Commands {
		g.Go(func() error {
			return telegram.NewCommands(rt.client, cfg.Telegram.Channel, logger).Poll(gCtx)
		})
	}

	// Config hot reload.
	if rt.cfgPath != "" {
		g.Go(func() error {
			if err := pkgconfig.Watch(gCtx, rt.cfgPath, 500*time.Millisecond, logger, rt.reload); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

// errShutdown cancels the group once a signal arrives so the scheduler,
// poller and watcher stop with the HTTP server.
var errShutdown = errors.New("shutdown requested")

// RunOnce runs a single cycle and returns an error if it failed.
func RunOnce(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	out, _ := rt.orch.TryRun(ctx)
	if out.Failure != nil {
		return fmt.Errorf("cycle %s failed: %w", out.ID, out.Failure)
	}
	rt.logger.Info("Cycle complete",
		slog.String("cycle_id", out.ID),
		slog.Int("new", len(out.New)),
		slog.Int("updated", len(out.Updated)))
	return nil
}

// ServeMCP serves the MCP tools over stdio. Logs must not go to stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer rt.shutdown()

	rt.logger.Info("Serving MCP over stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}
