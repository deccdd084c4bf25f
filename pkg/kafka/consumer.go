// Package kafka wraps segmentio/kafka-go for the navigator's two topics:
// analytics events and cache invalidations. Events travel as JSON with their
// type in a header.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

// TypeHeader names the message header carrying Event.Type.
const TypeHeader = "event-type"

// ErrPoison marks a message that can never be processed. The consumer
// commits it instead of retrying.
var ErrPoison = errors.New("poison message")

type Message struct {
	Key   []byte
	Type  string
	Value []byte
}

type MessageHandler func(ctx context.Context, msg Message) error

// ConsumerStats counts messages by outcome since the consumer started.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Poisoned  int64 `json:"poisoned"`
	Failed    int64 `json:"failed"`
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	groupID      string
	retry        resilience.RetryConfig
	fetchBackoff time.Duration
	metrics      *metrics.Metrics
}

// WithGroupID overrides the configured consumer group, e.g. to give every
// navigator instance its own view of the invalidation topic.
func WithGroupID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.groupID = id }
}

// WithHandlerRetry sets how often a failing handler is retried before the
// message is committed and skipped.
func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// WithFetchBackoff sets the initial pause after a failed fetch. It doubles
// per consecutive failure up to a few seconds.
func WithFetchBackoff(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) { o.fetchBackoff = d }
}

// WithConsumerMetrics counts settled messages per topic and outcome.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(o *consumerOptions) { o.metrics = m }
}

// Consumer reads one topic and hands each message to a MessageHandler.
// Messages are committed once handled, poisoned, or out of retries.
type Consumer struct {
	reader  reader
	handler MessageHandler
	topic   string
	opts    consumerOptions
	logger  *slog.Logger

	processed, poisoned, failed atomic.Int64

	mu       sync.Mutex
	fetchErr error
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := buildOptions(cfg.ConsumerGroup, opts)
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler, o)
}

func buildOptions(group string, opts []ConsumerOption) consumerOptions {
	o := consumerOptions{
		groupID:      group,
		retry:        resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		fetchBackoff: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newConsumer(r reader, topic string, handler MessageHandler, o consumerOptions) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		topic:   topic,
		opts:    o,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.groupID),
	}
}

// Start consumes until ctx is cancelled. It only returns nil.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	backoff := c.opts.fetchBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.setFetchErr(err)
			c.logger.Error("fetch failed", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(backoff*2, 5*time.Second)
			continue
		}
		c.setFetchErr(nil)
		backoff = c.opts.fetchBackoff

		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// handle reports false when ctx ended before the message was settled, in
// which case it must not be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	m := toMessage(msg)
	err := resilience.Retry(ctx, "consume "+c.topic, c.opts.retry, func() error {
		err := c.handler(ctx, m)
		if errors.Is(err, ErrPoison) {
			return resilience.Permanent(err)
		}
		return err
	})
	outcome := "processed"
	switch {
	case err == nil:
		c.processed.Add(1)
	case ctx.Err() != nil:
		return false
	case errors.Is(err, ErrPoison):
		outcome = "poisoned"
		c.poisoned.Add(1)
		c.logger.Warn("skipping poison message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	default:
		outcome = "failed"
		c.failed.Add(1)
		c.logger.Error("dropping message after retries", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
	if c.opts.metrics != nil {
		c.opts.metrics.KafkaMessagesTotal.WithLabelValues(c.topic, outcome).Inc()
	}
	return true
}

func (c *Consumer) setFetchErr(err error) {
	c.mu.Lock()
	c.fetchErr = err
	c.mu.Unlock()
}

// Ping returns the error of the latest fetch, or nil once a fetch succeeds.
// It backs the consumer's health check.
func (c *Consumer) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return fmt.Errorf("consuming %s: %w", c.topic, c.fetchErr)
	}
	return nil
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Poisoned:  c.poisoned.Load(),
		Failed:    c.failed.Load(),
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func toMessage(msg kafka.Message) Message {
	out := Message{Key: msg.Key, Value: msg.Value}
	for _, h := range msg.Headers {
		if h.Key == TypeHeader {
			out.Type = string(h.Value)
		}
	}
	return out
}

// DecodeJSON unmarshals a message value into T. Decode failures wrap
// ErrPoison.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w: %w", ErrPoison, err)
	}
	return result, nil
}
