// Package main is the entrypoint for the catalogstudio API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/catalogstudio/internal/api"
	"github.com/kiranshivaraju/catalogstudio/internal/api/handler"
	mw "github.com/kiranshivaraju/catalogstudio/internal/api/middleware"
	"github.com/kiranshivaraju/catalogstudio/internal/app"
	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	drainTimeout    = 2 * time.Minute
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("config loaded", "media_provider", cfg.Media.Provider, "storage", cfg.Storage.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(buildDependencies(a, log))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Single generation blocks for up to the media timeout.
		WriteTimeout: cfg.Media.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if !waitWithTimeout(a.Service.Wait, drainTimeout) {
		log.Warn("background jobs still running at exit", "waited", drainTimeout)
	}

	log.Info("server stopped gracefully")
	return nil
}

func buildDependencies(a *app.App, log *logger.Logger) api.Dependencies {
	svc := a.Service
	return api.Dependencies{
		Logger:    log,
		Auth:      mw.NewAuth(a.Store, log),
		RateLimit: mw.NewRateLimit(a.Cache, a.Config.Server.RateLimitPerMinute, log),

		HealthHandler:    handler.NewHealthHandler(a.Store, a.Cache),
		SubmitJobHandler: handler.NewSubmitJobHandler(svc, log),
		JobStatusHandler: handler.NewJobStatusHandler(svc, log),
		HaltJobHandler:   handler.NewHaltJobHandler(svc, log),
		GenerateHandler:  handler.NewGenerateHandler(svc, log),
		ListArtifacts:    handler.NewListArtifactsHandler(svc, log),
		CreateKeyHandler: handler.NewCreateKeyHandler(a.Store, log),
		ListKeysHandler:  handler.NewListKeysHandler(a.Store, log),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(a.Store, log),
	}
}

// waitWithTimeout reports whether wait returned before the timeout.
func waitWithTimeout(wait func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
