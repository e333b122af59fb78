// Package kafka wraps segmentio/kafka-go for the worker: a consumer that
// hands job requests to a callback and a producer that publishes JSON
// events (job completions and exported index entries).
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

// MessageHandler processes one message. Returning an error leaves the
// message uncommitted so it is redelivered after a restart.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a group consumer for topic. Job requests that arrived
// while no worker was running are processed from the committed offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerWithReader(r, topic, handler)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r MessageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{reader: r, handler: handler, logger: slog.With("component", "kafka-consumer", "topic", topic)}
}

// Start handles messages one at a time until ctx is cancelled. A handler
// error ends the loop with the offset left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			c.logger.Info("consumer stopping", "reason", context.Cause(ctx))
			return nil
		default:
			return fmt.Errorf("fetching message: %w", err)
		}

		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		log.Debug("message received", "key", string(msg.Key))
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			return fmt.Errorf("handling message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit failed", "error", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

// BrokerProbe returns a health probe that dials the first reachable broker.
func BrokerProbe(cfg config.KafkaConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var lastErr error
		for _, broker := range cfg.Brokers {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		if lastErr == nil {
			return fmt.Errorf("no kafka brokers configured")
		}
		return fmt.Errorf("no kafka broker reachable: %w", lastErr)
	}
}
