package enhancer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/tracing"
)

// EnhanceFunc is the call shape wrapped by middleware. The context only
// carries request-scoped values for the wrappers; the enhancer ignores it.
type EnhanceFunc func(ctx context.Context, query string, cfg Config) (string, Report)

// Middleware decorates an EnhanceFunc with a cross-cutting concern.
type Middleware func(EnhanceFunc) EnhanceFunc

// Func adapts e to an EnhanceFunc.
func (e *Enhancer) Func() EnhanceFunc {
	return func(_ context.Context, query string, cfg Config) (string, Report) {
		return e.Enhance(query, cfg)
	}
}

// Chain applies middleware so that the first one listed runs outermost.
func Chain(fn EnhanceFunc, mw ...Middleware) EnhanceFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](fn)
	}
	return fn
}

// Tracker receives analytics events. analytics.Collector satisfies it.
type Tracker interface {
	Track(event any)
}

// WithMetrics records enhancement counts and latency.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next EnhanceFunc) EnhanceFunc {
		return func(ctx context.Context, query string, cfg Config) (string, Report) {
			start := time.Now()
			enhanced, report := next(ctx, query, cfg)
			m.EnhanceLatency.Observe(time.Since(start).Seconds())
			m.EnhanceRequestsTotal.WithLabelValues(outcome(enhanced, report)).Inc()
			m.SynonymsAddedTotal.Add(float64(len(report.Synonyms)))
			m.CorrectionsTotal.Add(float64(len(report.Corrections)))
			for _, st := range report.SpecialTerms {
				m.SpecialTermsTotal.WithLabelValues(string(st.Kind)).Inc()
			}
			if !report.CategoryWeights.IsUniform() {
				m.TopCategoryTotal.WithLabelValues(string(report.TopCategory())).Inc()
			}
			return enhanced, report
		}
	}
}

// WithTracing wraps each call in a child span of the span in ctx.
func WithTracing() Middleware {
	return func(next EnhanceFunc) EnhanceFunc {
		return func(ctx context.Context, query string, cfg Config) (string, Report) {
			ctx, span := tracing.StartChildSpan(ctx, "enhance")
			defer span.End()
			enhanced, report := next(ctx, query, cfg)
			span.SetAttr("synonyms", len(report.Synonyms))
			span.SetAttr("corrections", len(report.Corrections))
			span.SetAttr("special_terms", len(report.SpecialTerms))
			span.SetAttr("top_category", string(report.TopCategory()))
			return enhanced, report
		}
	}
}

// WithAnalytics publishes an EnhancementEvent per non-empty query.
func WithAnalytics(t Tracker) Middleware {
	return func(next EnhanceFunc) EnhanceFunc {
		return func(ctx context.Context, query string, cfg Config) (string, Report) {
			start := time.Now()
			enhanced, report := next(ctx, query, cfg)
			if enhanced == "" {
				return enhanced, report
			}
			t.Track(NewEvent(ctx, query, enhanced, report, time.Since(start)))
			return enhanced, report
		}
	}
}

// WithLogging logs every call at debug level and every changed query at
// info level.
func WithLogging(l *slog.Logger) Middleware {
	return func(next EnhanceFunc) EnhanceFunc {
		return func(ctx context.Context, query string, cfg Config) (string, Report) {
			enhanced, report := next(ctx, query, cfg)
			log := l
			if id := logger.RequestID(ctx); id != "" {
				log = log.With("request_id", id)
			}
			if report.Changed() {
				log.Info("query enhanced",
					"query", query,
					"enhanced", enhanced,
					"synonyms", len(report.Synonyms),
					"corrections", len(report.Corrections),
				)
			} else {
				log.Debug("query unchanged", "query", query, "special_terms", len(report.SpecialTerms))
			}
			return enhanced, report
		}
	}
}

// NewEvent summarizes one enhancement for analytics.
func NewEvent(ctx context.Context, query, enhanced string, report Report, latency time.Duration) analytics.EnhancementEvent {
	ev := analytics.EnhancementEvent{
		Type:          analytics.EventEnhance,
		Query:         query,
		EnhancedQuery: enhanced,
		Expansions:    make([]string, 0, len(report.Synonyms)),
		Corrections:   make([]string, 0, len(report.Corrections)),
		SpecialTerms:  len(report.SpecialTerms),
		TopCategory:   string(report.TopCategory()),
		Uniform:       report.CategoryWeights.IsUniform(),
		LatencyUs:     latency.Microseconds(),
		Timestamp:     time.Now().UTC(),
		RequestID:     logger.RequestID(ctx),
	}
	for _, s := range report.Synonyms {
		ev.Expansions = append(ev.Expansions, fmt.Sprintf("%s -> %s", strings.ToLower(s.Original), s.Canonical))
	}
	for _, c := range report.Corrections {
		ev.Corrections = append(ev.Corrections, fmt.Sprintf("%s -> %s", strings.ToLower(c.Original), c.Corrected))
	}
	return ev
}

func outcome(enhanced string, report Report) string {
	switch {
	case enhanced == "":
		return "empty"
	case report.Changed():
		return "changed"
	default:
		return "unchanged"
	}
}
