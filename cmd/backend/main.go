package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/daease/medscribe/external/audio"
	configloader "github.com/daease/medscribe/external/config"
	"github.com/daease/medscribe/external/httpapi"
	reportimpl "github.com/daease/medscribe/external/report"
	repositoryimpl "github.com/daease/medscribe/external/repository"
	transcriberimpl "github.com/daease/medscribe/external/transcriber"
	webhookimpl "github.com/daease/medscribe/external/webhook"
	"github.com/daease/medscribe/internal/config"
	"github.com/daease/medscribe/internal/metrics"
	"github.com/daease/medscribe/internal/session"
	"github.com/samber/do/v2"
)

const (
	recoveryTimeout = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching http server")
	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, func(do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	reportimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}
	// Resolving the handler also plugs the live hub into the manager.
	handler, err := do.Invoke[http.Handler](injector)
	if err != nil {
		slog.Error("failed to resolve http handler", "error", err)
		os.Exit(1)
	}

	recoverCtx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
	if err := manager.Recover(recoverCtx); err != nil {
		cancel()
		slog.Error("failed to recover orphaned conversations", "error", err)
		os.Exit(1)
	}
	cancel()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
