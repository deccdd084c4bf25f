// Package handler serves the navigator's HTTP API: query enhancement,
// enhanced search across rule categories, category listings, entry lookup,
// upstream status and cache control.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/attribution"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/dndapi"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

// SearchExecutor runs category searches, listings and entry lookups. The
// bool results report a cache hit.
type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
	Entry(ctx context.Context, cat lexicon.Category, index string) (json.RawMessage, bool, error)
	List(ctx context.Context, cat lexicon.Category) ([]dndapi.Reference, bool, error)
	SearchCategory(ctx context.Context, cat lexicon.Category, name string) ([]dndapi.Reference, bool, error)
}

// StatusChecker reports the state of the rules API.
type StatusChecker interface {
	Status(ctx context.Context) dndapi.Status
}

// Invalidator drops a cache scope. *cache.Cache and *cache.Broadcaster
// both satisfy it.
type Invalidator interface {
	Invalidate(ctx context.Context, scope string) (int64, error)
}

// Options wires a Handler. Cache, Invalidator, Tracker and Upstream may be
// nil; a nil Invalidator falls back to Cache.
type Options struct {
	Enhance        enhancer.EnhanceFunc
	Lexicon        *lexicon.Lexicon
	Executor       SearchExecutor
	Cache          *cache.Cache
	Invalidator    Invalidator
	Tracker        enhancer.Tracker
	Upstream       StatusChecker
	MaxQueryLength int
}

type Handler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Handler {
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = 512
	}
	if opts.Invalidator == nil && opts.Cache != nil {
		opts.Invalidator = opts.Cache
	}
	return &Handler{
		opts:   opts,
		logger: slog.Default().With("component", "navigator-handler"),
	}
}

// Register mounts the API routes on mux. admin wraps the cache
// invalidation route and may be nil.
func (h *Handler) Register(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/v1/enhance", h.Enhance)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/{category}", h.SearchCategory)
	mux.HandleFunc("GET /api/v1/categories", h.Categories)
	mux.HandleFunc("GET /api/v1/entries/{category}", h.List)
	mux.HandleFunc("GET /api/v1/entries/{category}/{index}", h.Entry)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)

	var invalidate http.Handler = http.HandlerFunc(h.CacheInvalidate)
	if admin != nil {
		invalidate = admin(invalidate)
	}
	mux.Handle("POST /api/v1/cache/invalidate", invalidate)
}

// EnhanceResponse is the body of GET /api/v1/enhance.
type EnhanceResponse struct {
	Query         string          `json:"query"`
	EnhancedQuery string          `json:"enhanced_query"`
	Report        enhancer.Report `json:"report"`
	Notes         []string        `json:"notes"`
	Config        enhancer.Config `json:"config"`
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	*executor.SearchResult
	Report       enhancer.Report                 `json:"report"`
	Notes        []string                        `json:"notes"`
	Attributions []attribution.SourceAttribution `json:"attributions"`
}

// Enhance runs the pipeline only. An empty query yields the empty report.
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := h.checkLength(query); err != nil {
		h.writeErr(w, r, err)
		return
	}
	cfg, err := parseConfig(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	enhanced, report := h.opts.Enhance(r.Context(), query, cfg)
	h.writeJSON(w, http.StatusOK, EnhanceResponse{
		Query:         query,
		EnhancedQuery: enhanced,
		Report:        report,
		Notes:         attribution.Explain(report),
		Config:        cfg,
	})
}

// Search enhances the query and searches the prioritized categories.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeErr(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	if err := h.checkLength(query); err != nil {
		h.writeErr(w, r, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeErr(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	cfg, err := parseConfig(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	enhanced, report := h.opts.Enhance(ctx, query, cfg)
	result, err := h.opts.Executor.Execute(ctx, executor.Request{
		Query:    query,
		Enhanced: enhanced,
		Terms:    executor.Terms(enhanced, h.opts.Lexicon),
		Weights:  report.CategoryWeights,
		Limit:    limit,
	})
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeErr(w, r, err)
		return
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", query,
		"enhanced_query", enhanced,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hits", result.CacheHits,
		"latency_ms", latency.Milliseconds(),
	)
	if h.opts.Tracker != nil {
		cats := make([]string, len(result.Categories))
		for i, c := range result.Categories {
			cats[i] = string(c.Category)
		}
		h.opts.Tracker.Track(analytics.SearchEvent{
			Type:          analytics.EventSearch,
			Query:         query,
			EnhancedQuery: enhanced,
			Categories:    cats,
			TotalHits:     result.TotalHits,
			Returned:      len(result.Results),
			LatencyMs:     latency.Milliseconds(),
			CacheHits:     result.CacheHits,
			Timestamp:     time.Now().UTC(),
			RequestID:     middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{
		SearchResult: result,
		Report:       report,
		Notes:        attribution.Explain(report),
		Attributions: attribution.FromResults(attribution.NewManager(), result.Results, report, "search"),
	})
}

// CategoryInfo describes one searchable category.
type CategoryInfo struct {
	Name        lexicon.Category `json:"name"`
	Description string           `json:"description"`
	Entries     string           `json:"entries"`
}

// CategoriesResponse is the body of GET /api/v1/categories.
type CategoriesResponse struct {
	Categories []CategoryInfo `json:"categories"`
	Count      int            `json:"count"`
}

// ListResponse is the body of the category listing and category search
// routes. Query is empty for plain listings.
type ListResponse struct {
	Category lexicon.Category   `json:"category"`
	Query    string             `json:"query,omitempty"`
	Count    int                `json:"count"`
	Items    []dndapi.Reference `json:"items"`
	Source   string             `json:"source"`
}

const sourceName = "D&D 5e API (www.dnd5eapi.co)"

// Categories lists the fixed category set.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats := lexicon.AllCategories()
	resp := CategoriesResponse{Categories: make([]CategoryInfo, len(cats)), Count: len(cats)}
	for i, c := range cats {
		resp.Categories[i] = CategoryInfo{
			Name:        c,
			Description: c.Description(),
			Entries:     "/api/v1/entries/" + string(c),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// List returns every entry of a category.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cat, err := pathCategory(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	refs, hit, err := h.opts.Executor.List(r.Context(), cat)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeList(w, cat, "", refs, hit)
}

// SearchCategory matches entry names within one category. Unlike Search it
// does not run the enhancement pipeline.
func (h *Handler) SearchCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := pathCategory(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.writeErr(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'name' is required"))
		return
	}
	if err := h.checkLength(name); err != nil {
		h.writeErr(w, r, err)
		return
	}
	refs, hit, err := h.opts.Executor.SearchCategory(r.Context(), cat, name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeList(w, cat, name, refs, hit)
}

// Status reports the rules API as seen from this instance.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.opts.Upstream == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Upstream.Status(r.Context()))
}

func (h *Handler) writeList(w http.ResponseWriter, cat lexicon.Category, query string, refs []dndapi.Reference, hit bool) {
	if refs == nil {
		refs = []dndapi.Reference{}
	}
	w.Header().Set("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[hit])
	h.writeJSON(w, http.StatusOK, ListResponse{
		Category: cat,
		Query:    query,
		Count:    len(refs),
		Items:    refs,
		Source:   sourceName,
	})
}

func pathCategory(r *http.Request) (lexicon.Category, error) {
	cat, ok := lexicon.ParseCategory(r.PathValue("category"))
	if !ok {
		return "", apperrors.Newf(apperrors.ErrInvalidCategory, http.StatusBadRequest, "unknown category %q", r.PathValue("category"))
	}
	return cat, nil
}

// Entry returns one full rules document.
func (h *Handler) Entry(w http.ResponseWriter, r *http.Request) {
	cat, err := pathCategory(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	raw, hit, err := h.opts.Executor.Entry(r.Context(), cat, r.PathValue("index"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[hit])
	h.writeJSON(w, http.StatusOK, raw)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Cache.Stats(r.Context()))
}

// CacheInvalidate drops cached entries; ?category= limits it to one category.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Invalidator == nil {
		h.writeErr(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	scope := r.URL.Query().Get("category")
	if scope != "" {
		cat, ok := lexicon.ParseCategory(scope)
		if !ok {
			h.writeErr(w, r, apperrors.Newf(apperrors.ErrInvalidCategory, http.StatusBadRequest, "unknown category %q", scope))
			return
		}
		scope = string(cat)
	}
	deleted, err := h.opts.Invalidator.Invalidate(r.Context(), scope)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "scope": scope, "keys_deleted": deleted})
}

func (h *Handler) checkLength(query string) error {
	if utf8.RuneCountInString(query) > h.opts.MaxQueryLength {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query exceeds %d characters", h.opts.MaxQueryLength)
	}
	return nil
}

// parseConfig reads the stage toggles. Absent toggles default to on.
func parseConfig(r *http.Request) (enhancer.Config, error) {
	cfg := enhancer.DefaultConfig()
	toggles := []struct {
		name string
		dst  *bool
	}{
		{"synonyms", &cfg.Synonyms},
		{"special_terms", &cfg.SpecialTerms},
		{"fuzzy", &cfg.Fuzzy},
		{"categories", &cfg.Categories},
	}
	for _, t := range toggles {
		v := r.URL.Query().Get(t.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a boolean", t.name)
		}
		*t.dst = b
	}
	return cfg, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeErr maps err to a status code. Server-side failures hide their
// details from the client.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := apperrors.Public(err)
	if wait, ok := resilience.RetryAfterHint(err); ok && status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, resp)
}
