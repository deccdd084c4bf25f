package metrics

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Route is an extra endpoint served next to /metrics on the metrics port,
// typically the readiness check.
type Route struct {
	Pattern string
	Handler http.Handler
}

var indexPage = template.Must(template.New("index").Parse(`<html><body><h1>Knowledge Navigator</h1><ul>
{{range .}}<li><a href="{{.}}">{{.}}</a></li>
{{end}}</ul></body></html>`))

// NewMux builds the metrics port handler: the scrape endpoint, any extra
// routes and an index linking them.
func NewMux(m *Metrics, routes ...Route) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	links := []string{"/metrics"}
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
		links = append(links, routePath(r.Pattern))
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexPage.Execute(w, links); err != nil {
			slog.Error("rendering metrics index", "error", err)
		}
	})
	return mux
}

// StartServer serves NewMux on port in the background and returns its
// shutdown function.
func StartServer(port int, m *Metrics, routes ...Route) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(m, routes...),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "routes", len(routes)+1)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return server.Shutdown
}

// routePath strips an optional method from a mux pattern.
func routePath(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
