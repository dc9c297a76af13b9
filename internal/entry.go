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
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/portlight/internal/api"
	"github.com/starford/portlight/internal/discovery"
	"github.com/starford/portlight/internal/mcpserver"
	"github.com/starford/portlight/internal/monitor"
	"github.com/starford/portlight/internal/probe"
	"github.com/starford/portlight/internal/sse"
	pkgconfig "github.com/starford/portlight/pkg/config"
)

const sseKeepAlive = 15 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// stdout carries the protocol in MCP mode.
	logOut := os.Stdout
	if app.mode == ModeMCP {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Duration("scan_interval", cfg.Scan.Interval.Std()),
		slog.Duration("probe_timeout", cfg.Probe.Timeout.Std()),
		slog.String("probe_host", cfg.Probe.Host),
		slog.String("log_level", cfg.App.LogLevel.String()))

	sys := app.system
	if sys == nil {
		sys = discovery.NewHost()
	}
	prober := app.prober
	if prober == nil {
		prober = probe.New(cfg.Probe.Timeout.Std())
	}

	mon := monitor.New(monitor.Deps{
		System:   sys,
		Prober:   prober,
		Browsers: cfg.Scan.Browsers,
		Logger:   logger,
	}, monitor.Options{
		Interval:    cfg.Scan.Interval.Std(),
		KillRecheck: cfg.Scan.KillRecheck.Std(),
		ProbeHost:   cfg.Probe.Host,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mon.Run(gCtx)
	})

	if app.configPath != "" {
		g.Go(func() error {
			err := pkgconfig.Watch(gCtx, app.configPath, NewDefaultConfig, logger, func(next *Config) {
				applyReload(cfg, next, mon, logger)
			})
			if err != nil {
				logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// stop runs once the application is shutting down.
	var stop func()

	switch app.mode {
	case ModeMCP:
		srv := mcpserver.New(mon, app.version)
		g.Go(func() error {
			logger.Info("Starting MCP server on stdio")
			defer cancel()
			return srv.ServeStdio(gCtx, logger)
		})
		stop = func() {}

	default:
		broker := sse.NewBroker(sseKeepAlive)
		mon.Subscribe(broker.PublishView)

		httpServer := &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newHTTPHandler(cfg, mon, broker),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		stop = func() {
			logger.Info("Shutting down server...")
			// Ends open event streams so Shutdown does not wait on them.
			broker.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
	}

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

		cancel()
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newHTTPHandler(cfg *Config, mon *monitor.Monitor, events http.Handler) http.Handler {
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
	// Ready once the first discovery cycle has been merged.
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if mon.Cycles() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; the event stream shares the auth group.
	r.Mount("/api", api.NewRouter(mon, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))

	return r
}

// applyReload applies the live-reloadable part of next and reports the rest.
func applyReload(cur, next *Config, mon *monitor.Monitor, logger *slog.Logger) {
	if !slices.Equal(cur.Scan.Browsers, next.Scan.Browsers) {
		mon.SetBrowsers(next.Scan.Browsers)
		cur.Scan.Browsers = next.Scan.Browsers
		logger.Info("config: browser allow-list updated", slog.Any("browsers", next.Scan.Browsers))
	}

	var restart []string
	if cur.App != next.App {
		restart = append(restart, "app")
	}
	if cur.Scan.Interval != next.Scan.Interval || cur.Scan.KillRecheck != next.Scan.KillRecheck {
		restart = append(restart, "scan")
	}
	if cur.Probe != next.Probe {
		restart = append(restart, "probe")
	}
	if cur.Auth != next.Auth {
		restart = append(restart, "auth")
	}
	if len(restart) > 0 {
		logger.Warn("config: changes require a restart", slog.Any("sections", restart))
	}
}
