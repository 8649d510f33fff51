package backend

import (
	"errors"
	"fmt"
	"time"

	"spendlens/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	CacheEnabled  bool
	CacheTTL      time.Duration
	CacheMaxItems int64

	Events       EventsType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	KafkaBrokers []string
	KafkaTopic   string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	eventsType := EventsType(appConfig.EventsBackend)
	if eventsType == "" {
		eventsType = NoEvents
	}
	if !eventsType.IsValid() {
		return Config{}, fmt.Errorf("invalid events backend in config: %s", appConfig.EventsBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		CacheEnabled:  appConfig.CacheEnabled,
		CacheTTL:      appConfig.CacheTTL,
		CacheMaxItems: appConfig.CacheMaxItems,

		Events:       eventsType,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres backend")
		}
	}

	if c.CacheEnabled && (c.CacheMaxItems <= 0 || c.CacheTTL <= 0) {
		return errors.New("cache needs a positive size and TTL")
	}

	switch c.Events {
	case "", NoEvents:
	case AMQPEvents:
		if c.AMQPURL == "" {
			return errors.New("AMQP URL is required for amqp events")
		}
	case KafkaEvents:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("at least one Kafka broker is required for kafka events")
		}
	default:
		return fmt.Errorf("invalid events backend: %s", c.Events)
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
