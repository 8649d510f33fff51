package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"spendlens/internal/events"
)

// DefaultGroupID is the consumer group shared by worker replicas.
const DefaultGroupID = "spendlens-worker"

// Consumer reads LedgerSynced events as part of a consumer group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        time.Second,
			CommitInterval: 0,
		}),
	}
}

// ConsumeLedgerSynced delivers events to handler until ctx ends. Offsets
// are committed after each message whatever the handler returns: every
// event carries only a pointer to current state, so the next event for the
// same user repairs a failed one.
func (c *Consumer) ConsumeLedgerSynced(ctx context.Context, handler func(context.Context, events.LedgerSynced) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		e, err := events.LedgerSyncedFromJSON(msg.Value)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset)
		} else if err := handler(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to handle message",
				"error", err,
				"user_id", e.UserID,
				"collection", e.Collection)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
