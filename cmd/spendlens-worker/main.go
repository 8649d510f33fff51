package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendlens/internal/amqp"
	"spendlens/internal/backend"
	"spendlens/internal/cli"
	"spendlens/internal/config"
	"spendlens/internal/events"
	"spendlens/internal/events/kafka"
	logx "spendlens/internal/log"
	"spendlens/internal/worker"
)

type consumer interface {
	ConsumeLedgerSynced(ctx context.Context, handler func(context.Context, events.LedgerSynced) error) error
	Close() error
}

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(logx.ComponentWorker)
	ctx := context.Background()

	logger.InfoContext(ctx, "Starting spendlens-worker",
		logx.FieldOperation, logx.OpStartup,
		"events", cfg.EventsBackend,
		"concurrency", cfg.WorkerConcurrency)

	if cfg.DataBackend == config.BackendMemory {
		logger.ErrorContext(ctx, "The worker needs a shared backend; memory is private to the server process")
		os.Exit(1)
	}

	sheets, err := cli.NewSheetsExporter(ctx, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize Google Sheets exporter", logx.FieldError, err)
		os.Exit(1)
	}
	if sheets == nil {
		logger.ErrorContext(ctx, "Nothing to mirror into - no GOOGLE_SPREADSHEET_ID provided")
		os.Exit(1)
	}

	src, err := newConsumer(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize event consumer", logx.FieldError, err)
		os.Exit(1)
	}
	defer src.Close()

	// the worker only reads; it never publishes
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid backend configuration", logx.FieldError, err)
		os.Exit(1)
	}
	backendCfg.Events = backend.NoEvents
	backends, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize backend", logx.FieldError, err)
		os.Exit(1)
	}
	defer backends.Cleanup()

	syncWorker := worker.NewSyncWorker(backends.Persistence, sheets, cfg.WorkerConcurrency)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := syncWorker.Wait(shutdownCtx); err != nil {
			logger.WarnContext(shutdownCtx, "Mirrors still running at shutdown", logx.FieldError, err)
		}
	})

	if err := src.ConsumeLedgerSynced(ctx, syncWorker.HandleLedgerSynced); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "Message consumption failed", logx.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Worker shutdown complete")
}

func newConsumer(cfg *config.Config) (consumer, error) {
	switch cfg.EventsBackend {
	case config.EventsAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.EventsKafka:
		return kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, kafka.DefaultGroupID), nil
	default:
		return nil, errors.New("EVENTS_BACKEND must be amqp or kafka for the worker")
	}
}
