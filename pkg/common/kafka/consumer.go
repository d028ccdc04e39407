package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

const (
	defaultHandlerAttempts = 3
	defaultHandlerBackoff  = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   messageReader
	attempts int
	backoff  time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader, attempts: defaultHandlerAttempts, backoff: defaultHandlerBackoff}
}

// Consume blocks until ctx is cancelled. A failing handler is retried in
// place with backoff. Committing a later offset would skip the message
// anyway, so after the last attempt it is logged as dropped and committed.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			continue
		}

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).Error("Failed to unmarshal event")
		} else if err := c.handle(ctx, handler, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"offset":     message.Offset,
				"attempts":   c.attempts,
			}).Error("Dropping event after failed attempts")
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler EventHandler, event models.Event) error {
	attempts := c.attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, event); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id": event.ID,
			"attempt":  attempt,
		}).Warn("Event handler failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
