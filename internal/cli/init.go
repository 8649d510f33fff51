// Package cli provides common CLI initialization utilities shared by
// cmd/spendlens, cmd/spendlens-worker and cmd/adduser.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendlens/internal/config"
	logx "spendlens/internal/log"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_JSON and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *logx.Logger {
	lc := logx.DefaultConfig()
	if cfg != nil {
		lc.Level = logx.ParseLevel(cfg.LogLevel)
		lc.JSON = cfg.LogJSON
	}
	logger := logx.New(lc)
	logx.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration, builds the logger it asks for
// and validates it. Exits the process on validation failure.
func LoadAndValidateConfig() (*config.Config, *logx.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.ErrorContext(context.Background(), "Configuration validation failed", logx.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM; cleanup then runs
// bounded by timeout and done is closed once it returns.
func GracefulShutdown(logger *logx.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.InfoContext(ctx, "Shutdown signal received", "signal", sig.String())

		cancel()
		runCleanup(logger, timeout, cleanup)
		close(done)
	}()

	return ctx, done
}

func runCleanup(logger *logx.Logger, timeout time.Duration, cleanup func(ctx context.Context)) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	finished := make(chan struct{})
	go func() {
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		close(finished)
	}()

	select {
	case <-finished:
		logger.InfoContext(shutdownCtx, "Shutdown complete", logx.FieldOperation, logx.OpShutdown)
	case <-shutdownCtx.Done():
		logger.WarnContext(context.Background(), "Shutdown timeout reached", logx.FieldOperation, logx.OpShutdown)
	}
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
