package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendlens/internal/auth"
	"spendlens/internal/backend"
	"spendlens/internal/cli"
	apphttp "spendlens/internal/http"
	"spendlens/internal/ledger"
	logx "spendlens/internal/log"
	"spendlens/internal/session"
)

func main() {
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig()

	ctx := context.Background()
	logger.InfoContext(ctx, "Starting spendlens server",
		logx.FieldOperation, logx.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsBackend)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid backend configuration", logx.FieldError, err)
		os.Exit(1)
	}
	backends, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize backend", logx.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sheets, err := cli.NewSheetsExporter(ctx, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize Google Sheets exporter", logx.FieldError, err)
		os.Exit(1)
	}
	if sheets == nil {
		logger.InfoContext(ctx, "Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	sessions := session.NewManager(backends.Persistence,
		session.WithSyncTimeout(cfg.SyncTimeout),
		session.WithNotificationTTL(cfg.NotificationTTL),
		session.WithLedgerOptions(ledger.WithPublisher(backends.Publisher)),
	)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions:      sessions,
		Tokens:        auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		Sheets:        sheets,
		Logger:        logger,
		Ready:         backends.Ready,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Server shutdown error", logx.FieldError, err)
		}
		// pending write-throughs must land before the backends close
		if err := sessions.Close(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Session shutdown error", logx.FieldError, err)
		}
		if err := backends.Cleanup(); err != nil {
			logger.ErrorContext(shutdownCtx, "Backend cleanup error", logx.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorContext(ctx, "Server error", logx.FieldError, err, "port", cfg.Port)
		_ = backends.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Server stopped gracefully")
}
