package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
)

// Sink receives flushed batches.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// Publisher is the slice of kafka.Producer a KafkaSink needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes batches to a Kafka topic.
type KafkaSink struct {
	Producer Publisher
}

func (s KafkaSink) Write(ctx context.Context, events []Event) error {
	batch := make([]kafka.Event, 0, len(events))
	for _, ev := range events {
		batch = append(batch, toKafka(ev))
	}
	return s.Producer.PublishBatch(ctx, batch)
}

// CollectorConfig sizes the collector. Zero fields take defaults.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events from request paths and flushes them to a Sink in
// batches, either when a batch fills or when the flush interval elapses.
// Track never blocks: events are dropped when the buffer is full.
type Collector struct {
	sink    Sink
	cfg     CollectorConfig
	metrics *metrics.Metrics
	eventCh chan Event
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewCollector creates a collector. m may be nil.
func NewCollector(sink Sink, cfg CollectorConfig, m *metrics.Metrics) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		sink:    sink,
		cfg:     cfg,
		metrics: m,
		eventCh: make(chan Event, cfg.BufferSize),
		logger:  slog.Default().With("component", "analytics-collector"),
		done:    make(chan struct{}),
	}
}

// Start launches the flush loop. It runs until ctx is cancelled or Close is
// called, flushing whatever is buffered on the way out.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, c.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		c.write(ctx, batch)
		batch = make([]Event, 0, c.cfg.BatchSize)
	}

	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				c.final(flush)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= c.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case ev, ok := <-c.eventCh:
					if !ok {
						break drain
					}
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			c.final(flush)
			return
		}
	}
}

func (c *Collector) final(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flush(ctx)
}

func (c *Collector) write(ctx context.Context, batch []Event) {
	if err := c.sink.Write(ctx, batch); err != nil {
		c.logger.Error("failed to flush analytics events", "count", len(batch), "error", err)
		c.count("failed", len(batch))
		return
	}
	c.count("published", len(batch))
	c.logger.Debug("analytics events flushed", "count", len(batch))
}

// Track queues an event. Values that are not Events are ignored.
func (c *Collector) Track(event any) {
	ev, ok := event.(Event)
	if !ok {
		c.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.count("dropped", 1)
		return
	}
	select {
	case <-c.done:
		c.count("dropped", 1)
		return
	default:
	}
	select {
	case c.eventCh <- ev:
		c.count("tracked", 1)
	default:
		c.count("dropped", 1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush. Start must
// have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) count(status string, n int) {
	if c.metrics != nil {
		c.metrics.AnalyticsEventsTotal.WithLabelValues(status).Add(float64(n))
	}
}
