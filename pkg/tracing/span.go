// Package tracing records in-process span trees for sampled requests and
// logs them through slog when the root span finishes. Spans cover the
// enhancement pipeline and each category fetch of a search.
package tracing

import (
	"context"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

type Span struct {
	Name      string
	TraceID   string
	SpanID    string
	ParentID  string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
	err      error
	ended    bool
}

func NewTraceID() string {
	return uuid.NewString()
}

func newSpanID() string {
	id := uuid.New()
	return id.String()[:8]
}

// Sampled reports whether a new trace should be recorded at the given rate.
// Rates at or above 1 always sample; rates at or below 0 never do.
func Sampled(rate float64) bool {
	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	default:
		return rand.Float64() < rate
	}
}

func newSpan(name, traceID, parentID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		SpanID:    newSpanID(),
		ParentID:  parentID,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
}

// StartSpan creates a root span and stores it in the returned context. An
// empty traceID is replaced by a fresh one.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = NewTraceID()
	}
	span := newSpan(name, traceID, "")
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent the
// child is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		child := newSpan(name, "", "")
		return context.WithValue(ctx, contextKey{}, child), child
	}
	child := newSpan(name, parent.TraceID, parent.SpanID)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// RecordError marks the span failed. A nil err is ignored.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Attributes returns a copy of the span's attributes.
func (s *Span) Attributes() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.attrs)
}

// ChildSpans returns a snapshot of the span's direct children.
func (s *Span) ChildSpans() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.children)
}

// Walk visits s and its descendants depth first.
func (s *Span) Walk(fn func(span *Span, depth int)) {
	s.walk(fn, 0)
}

func (s *Span) walk(fn func(*Span, int), depth int) {
	fn(s, depth)
	for _, c := range s.ChildSpans() {
		c.walk(fn, depth+1)
	}
}

// Log writes one record per span, or uses slog.Default when logger is nil.
// Failed spans log at warn level.
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.Walk(func(span *Span, depth int) {
		attrs := span.Attributes()
		args := []any{
			"trace_id", span.TraceID,
			"span_id", span.SpanID,
			"span", span.Name,
			"duration_us", span.Duration.Microseconds(),
			"depth", depth,
		}
		if span.ParentID != "" {
			args = append(args, "parent_id", span.ParentID)
		}
		for _, k := range slices.Sorted(maps.Keys(attrs)) {
			args = append(args, k, attrs[k])
		}
		if err := span.Err(); err != nil {
			logger.Warn("span", append(args, "error", err)...)
			return
		}
		logger.Info("span", args...)
	})
}
