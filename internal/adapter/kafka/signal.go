// Package kafka consumes ingestion signals from the collector family.
// Each message announces new data for one event type; the result cache
// drops every entry whose query touched that type.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/feast-correlation/internal/config"
	"github.com/couchcryptid/feast-correlation/internal/domain"
)

// Invalidator is the slice of the result cache the consumer needs.
type Invalidator interface {
	Invalidate(t domain.EventType) int
}

// SignalConsumer reads ingestion notices and drives cache invalidation.
type SignalConsumer struct {
	reader      *kafkago.Reader
	invalidator Invalidator
	logger      *slog.Logger
}

// NewSignalConsumer creates a consumer for the configured signal topic.
func NewSignalConsumer(cfg *config.Config, invalidator Invalidator, logger *slog.Logger) *SignalConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})
	return &SignalConsumer{reader: reader, invalidator: invalidator, logger: logger}
}

// Run consumes until the context is cancelled. Malformed notices are logged,
// committed, and skipped; a bad message must not wedge the partition.
func (c *SignalConsumer) Run(ctx context.Context) error {
	c.logger.Info("ingestion signal consumer started", "topic", c.reader.Config().Topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.logger.Info("ingestion signal consumer stopping")
				return nil
			}
			c.logger.Error("fetch ingestion signal failed", "error", err)
			continue
		}

		var notice domain.IngestionNotice
		if err := json.Unmarshal(msg.Value, &notice); err != nil {
			c.logger.Warn("malformed ingestion signal, skipping",
				"error", err, "partition", msg.Partition, "offset", msg.Offset)
			c.commit(ctx, msg)
			continue
		}
		if _, err := domain.ParseEventType(string(notice.EventType)); err != nil {
			c.logger.Warn("ingestion signal for unknown event type, skipping",
				"event_type", notice.EventType, "offset", msg.Offset)
			c.commit(ctx, msg)
			continue
		}

		dropped := c.invalidator.Invalidate(notice.EventType)
		c.logger.Info("cache invalidated by ingestion signal",
			"event_type", notice.EventType,
			"from", notice.From, "to", notice.To,
			"entries_dropped", dropped,
		)
		c.commit(ctx, msg)
	}
}

// Close releases the underlying reader.
func (c *SignalConsumer) Close() error {
	return c.reader.Close()
}

func (c *SignalConsumer) commit(ctx context.Context, msg kafkago.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn("commit ingestion signal failed", "error", err, "offset", msg.Offset)
	}
}
