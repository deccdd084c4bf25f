package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
)

// Event is one message to publish. Key picks the partition, Value is
// marshalled to JSON and Type travels in the TypeHeader header.
type Event struct {
	Key   string
	Type  string
	Value any
}

// ProducerStats counts messages by write outcome.
type ProducerStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerOption func(*Producer)

// WithWriteTimeout bounds each WriteMessages call. Zero leaves the caller's
// context as the only limit.
func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(p *Producer) { p.writeTimeout = d }
}

// WithMetrics counts published and failed messages per topic.
func WithMetrics(m *metrics.Metrics) ProducerOption {
	return func(p *Producer) { p.metrics = m }
}

// Producer writes JSON events to one topic. Writes are synchronous so
// callers see delivery errors.
type Producer struct {
	w            writer
	topic        string
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	published, failed atomic.Int64
}

func NewProducer(cfg config.KafkaConfig, topic string, opts ...ProducerOption) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic, opts...)
}

func newProducer(w writer, topic string, opts ...ProducerOption) *Producer {
	p := &Producer{
		w:            w,
		topic:        topic,
		writeTimeout: 5 * time.Second,
		logger:       slog.Default().With("component", "kafka-producer", "topic", topic),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so one bad value
// fails the batch without a partial write. A partial broker failure is
// reported with the count of lost messages.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msg, err := encode(ev)
		if err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.Type, err)
		}
		msgs[i] = msg
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}
	err := p.w.WriteMessages(ctx, msgs...)
	lost := len(msgs)
	var partial kafka.WriteErrors
	switch {
	case err == nil:
		lost = 0
	case errors.As(err, &partial):
		lost = partial.Count()
	}
	p.count(len(msgs)-lost, lost)
	if err != nil {
		p.logger.Error("publish failed", "messages", len(msgs), "lost", lost, "error", err)
		return fmt.Errorf("publishing %d of %d messages to %s: %w", lost, len(msgs), p.topic, err)
	}
	return nil
}

func (p *Producer) count(ok, lost int) {
	p.published.Add(int64(ok))
	p.failed.Add(int64(lost))
	if p.metrics == nil {
		return
	}
	if ok > 0 {
		p.metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "published").Add(float64(ok))
	}
	if lost > 0 {
		p.metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "publish_failed").Add(float64(lost))
	}
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{Published: p.published.Load(), Failed: p.failed.Load()}
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.w.Close()
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	if event.Type != "" {
		msg.Headers = []kafka.Header{{Key: TypeHeader, Value: []byte(event.Type)}}
	}
	return msg, nil
}
