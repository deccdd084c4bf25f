package enhancer

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/tracing"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingTracker) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next EnhanceFunc) EnhanceFunc {
			return func(ctx context.Context, q string, cfg Config) (string, Report) {
				calls = append(calls, name+">")
				out, r := next(ctx, q, cfg)
				calls = append(calls, "<"+name)
				return out, r
			}
		}
	}
	fn := Chain(newEnhancer(t).Func(), mark("outer"), mark("inner"))
	enhanced, _ := fn(context.Background(), "AC", DefaultConfig())

	assert.Equal(t, "AC armor class", enhanced)
	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, calls)
}

func TestWithMetrics(t *testing.T) {
	m := metrics.New()
	fn := Chain(newEnhancer(t).Func(), WithMetrics(m))
	ctx := context.Background()

	fn(ctx, "What is the AC of a dragon?", DefaultConfig())
	fn(ctx, "firball for 2d6+3", DefaultConfig())
	fn(ctx, "hello", DefaultConfig())
	fn(ctx, "", DefaultConfig())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnhanceRequestsTotal.WithLabelValues("changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnhanceRequestsTotal.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnhanceRequestsTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SynonymsAddedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpecialTermsTotal.WithLabelValues("dice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TopCategoryTotal.WithLabelValues("monsters")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TopCategoryTotal.WithLabelValues("spells")))
}

func TestWithTracingAddsChildSpan(t *testing.T) {
	fn := Chain(newEnhancer(t).Func(), WithTracing())
	ctx, root := tracing.StartSpan(context.Background(), "request", "trace-1")

	fn(ctx, "Tell me about firball", DefaultConfig())
	root.End()

	children := root.ChildSpans()
	require.Len(t, children, 1)
	child := children[0]
	assert.Equal(t, "enhance", child.Name)
	assert.Equal(t, "trace-1", child.TraceID)
	attrs := child.Attributes()
	assert.Equal(t, 1, attrs["corrections"])
	assert.Equal(t, "spells", attrs["top_category"])
}

func TestWithAnalyticsPublishesEvents(t *testing.T) {
	tracker := &recordingTracker{}
	fn := Chain(newEnhancer(t).Func(), WithAnalytics(tracker))
	ctx := logger.WithRequestID(context.Background(), "req-42")

	fn(ctx, "", DefaultConfig())
	fn(ctx, "AC of a wizzard", DefaultConfig())

	require.Len(t, tracker.events, 1)
	ev, ok := tracker.events[0].(analytics.EnhancementEvent)
	require.True(t, ok)
	assert.Equal(t, analytics.EventEnhance, ev.Type)
	assert.Equal(t, "AC of a wizzard", ev.Query)
	assert.Equal(t, "AC of a wizard armor class", ev.EnhancedQuery)
	assert.Equal(t, []string{"ac -> armor class"}, ev.Expansions)
	assert.Equal(t, []string{"wizzard -> wizard"}, ev.Corrections)
	assert.Equal(t, "req-42", ev.RequestID)
	assert.False(t, ev.Uniform)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fn := Chain(newEnhancer(t).Func(), WithLogging(l))
	ctx := logger.WithRequestID(context.Background(), "req-7")

	fn(ctx, "AC", DefaultConfig())
	fn(ctx, "dragon", DefaultConfig())

	out := buf.String()
	assert.Contains(t, out, `msg="query enhanced"`)
	assert.Contains(t, out, `msg="query unchanged"`)
	assert.Contains(t, out, "request_id=req-7")
}

func TestMiddlewareDoesNotAlterResult(t *testing.T) {
	e := newEnhancer(t)
	tracker := &recordingTracker{}
	wrapped := Chain(e.Func(),
		WithLogging(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		WithMetrics(metrics.New()),
		WithTracing(),
		WithAnalytics(tracker),
	)
	for _, q := range corpus {
		wantEnhanced, wantReport := e.Enhance(q, DefaultConfig())
		gotEnhanced, gotReport := wrapped(context.Background(), q, DefaultConfig())
		assert.Equal(t, wantEnhanced, gotEnhanced)
		assert.Equal(t, wantReport, gotReport)
	}
}
