package backend

import (
	"context"
	"errors"
	"fmt"

	"spendlens/internal/amqp"
	"spendlens/internal/cache"
	"spendlens/internal/events"
	"spendlens/internal/events/kafka"
	logx "spendlens/internal/log"
	"spendlens/internal/persistence"
	"spendlens/internal/persistence/memory"
	"spendlens/internal/storage"
	"spendlens/internal/storage/postgres"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *logx.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *logx.Logger) Factory {
	if logger == nil {
		logger = logx.FromContext(context.Background())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(logx.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. Resources opened before
// a failure are released before returning.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	repo, closeRepo, err := f.createPersistence(ctx, config)
	if err != nil {
		return nil, err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	ready := func(context.Context) error { return nil }
	if p, ok := repo.(pinger); ok {
		ready = p.Ping
	}

	if config.CacheEnabled {
		cached, err := cache.Wrap(repo, config.CacheMaxItems, config.CacheTTL)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		closers = append(closers, cached.Close)
		repo = cached
		f.logger.InfoContext(ctx, "Initialized persistence cache",
			"max_items", config.CacheMaxItems,
			"ttl", config.CacheTTL.String())
	}

	publisher := f.createPublisher(ctx, config)
	closers = append(closers, publisher.Close)

	return &Result{
		Persistence: repo,
		Publisher:   publisher,
		Ready:       ready,
		Cleanup:     cleanup,
	}, nil
}

func (f *DefaultFactory) createPersistence(ctx context.Context, config Config) (persistence.Persistence, func() error, error) {
	switch config.Type {
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return memory.New(), nil, nil

	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", logx.FieldPath, config.SQLiteDBPath)
		return repo, repo.Close, nil

	case PostgresBackend:
		store, err := postgres.Connect(ctx, config.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized postgres backend")
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createPublisher never fails: an unreachable broker degrades to no events,
// since publishing is best effort anyway.
func (f *DefaultFactory) createPublisher(ctx context.Context, config Config) events.Publisher {
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
				logx.FieldError, err)
			return events.Nop{}
		}
		f.logger.InfoContext(ctx, "Initialized AMQP publisher",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client

	case KafkaEvents:
		f.logger.InfoContext(ctx, "Initialized Kafka publisher",
			"brokers", len(config.KafkaBrokers),
			"topic", config.KafkaTopic)
		return kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)

	default:
		return events.Nop{}
	}
}
