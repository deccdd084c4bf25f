package middleware

import (
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/tracing"
)

// Tracing starts a root span per sampled request, keyed by the request id,
// and logs the span tree when the request completes.
func Tracing(sampleRate float64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tracing.Sampled(sampleRate) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+routeLabel(r.URL.Path), GetRequestID(r.Context()))
			span.SetAttr("path", r.URL.Path)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			span.SetAttr("status", sw.status)
			if sw.status >= http.StatusInternalServerError {
				span.RecordError(fmt.Errorf("responded %d", sw.status))
			}
			span.End()
			span.Log(logger.FromContext(ctx))
		})
	}
}

// Chain composes middleware so the first one listed is outermost.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
