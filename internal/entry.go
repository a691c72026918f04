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
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/soramir/inkwell/internal/api"
	"github.com/soramir/inkwell/internal/capture"
	"github.com/soramir/inkwell/internal/mcpserver"
	"github.com/soramir/inkwell/internal/messages"
	"github.com/soramir/inkwell/internal/provision"
	"github.com/soramir/inkwell/internal/runlog"
	"github.com/soramir/inkwell/internal/siyuan"
	"github.com/soramir/inkwell/internal/sse"
	"github.com/soramir/inkwell/internal/state"
)

// settingsHolder carries the live-reloadable part of the configuration.
type settingsHolder struct {
	mu sync.RWMutex
	ai AIConfig
}

func (h *settingsHolder) set(ai AIConfig) {
	h.mu.Lock()
	h.ai = ai
	h.mu.Unlock()
}

func (h *settingsHolder) provider() capture.ProviderSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := h.ai.Active()
	return capture.ProviderSettings{
		Provider:     h.ai.Provider,
		BaseURL:      active.BaseURL,
		APIKey:       active.APIKey,
		Model:        active.Model,
		SystemPrompt: h.ai.SystemPrompt,
	}
}

// buildService wires the kernel client, stores and orchestrator shared
// by the HTTP and MCP surfaces.
func buildService(cfg *Config, holder *settingsHolder, events capture.EventCallback) (*capture.Service, *runlog.DB, *siyuan.Client, error) {
	st, err := state.NewStore(cfg.State.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init state store: %w", err)
	}

	var runs *runlog.DB
	if cfg.RunLog.Enabled() {
		runs, err = runlog.Open(cfg.RunLog.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init run log: %w", err)
		}
	}

	client := siyuan.NewClient(cfg.Kernel.BaseURL, cfg.Kernel.Token)
	adapter := messages.NewAdapter(client)
	engine := provision.NewEngine(client, st, cfg.Capture.NotebookName, cfg.Capture.DiaryDocPath)
	svc := capture.NewService(client, adapter, engine, runs, holder.provider, events)
	return svc, runs, client, nil
}

// Run starts the daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("kernel_url", cfg.Kernel.BaseURL),
		slog.String("provider", cfg.AI.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	holder := &settingsHolder{}
	holder.set(cfg.AI)

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	svc, runs, kernelClient, err := buildService(cfg, holder, func(kind string, data any) {
		broker.Publish(sse.Event{Type: kind, Data: data})
	})
	if err != nil {
		return err
	}
	if runs != nil {
		defer runs.Close()
	}

	// Resolve containers and load today's messages. A failing kernel is
	// tolerated here: the capture surface starts empty and send will
	// retry resolution lazily.
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := svc.Initialize(initCtx); err != nil {
		logger.Warn("initial load failed, starting empty", slog.String("error", err.Error()))
	}
	cancel()

	// Build API router.
	apiRouter := api.NewRouter(svc, runs, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := kernelClient.ListNotebooks(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"kernel unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the config file for settings changes.
	if app.configPath != "" {
		g.Go(func() error {
			watchConfig(gCtx, app.configPath, logger, func(next *Config) {
				holder.set(next.AI)
				logger.Info("settings reloaded", slog.String("provider", next.AI.Provider))
			})
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server instead of the HTTP daemon.
// Logs go to stderr so stdout stays clean for the MCP transport.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	holder := &settingsHolder{}
	holder.set(cfg.AI)

	svc, runs, _, err := buildService(cfg, holder, nil)
	if err != nil {
		return err
	}
	if runs != nil {
		defer runs.Close()
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := svc.Initialize(initCtx); err != nil {
		logger.Warn("initial load failed, starting empty", slog.String("error", err.Error()))
	}
	cancel()

	return mcpserver.New(svc).ServeStdio()
}
