package backend

import (
	"context"

	"spendlens/internal/events"
	"spendlens/internal/persistence"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result bundles everything the process needs from its backends.
type Result struct {
	Persistence persistence.Persistence
	Publisher   events.Publisher
	// Ready probes the persistence backend; nil-safe to call.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// BackendType represents the type of persistence backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// EventsType selects where ledger events are published.
type EventsType string

const (
	NoEvents    EventsType = "none"
	AMQPEvents  EventsType = "amqp"
	KafkaEvents EventsType = "kafka"
)

func (et EventsType) IsValid() bool {
	switch et {
	case NoEvents, AMQPEvents, KafkaEvents:
		return true
	default:
		return false
	}
}
