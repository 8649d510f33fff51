package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"spendlens/internal/events"
)

// DefaultTopic receives LedgerSynced events when no topic is configured.
const DefaultTopic = "ledger_synced"

type Publisher struct {
	writer *kafka.Writer
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishLedgerSynced writes e keyed by user id so one user's events stay
// ordered within a partition.
func (p *Publisher) PublishLedgerSynced(ctx context.Context, e events.LedgerSynced) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: data,
		Time:  e.Timestamp,
	}); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	slog.DebugContext(ctx, "Published ledger event",
		"topic", p.writer.Topic,
		"user_id", e.UserID,
		"collection", e.Collection)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
