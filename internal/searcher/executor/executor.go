// Package executor runs the downstream category search for an enhanced query:
// it picks the categories worth querying from the weight map, fetches their
// entry lists concurrently through the cache and ranks the entries.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/dndapi"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/category"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/tracing"
)

// Source is the slice of the rules API the executor needs.
type Source interface {
	List(ctx context.Context, category string) ([]dndapi.Reference, error)
	Get(ctx context.Context, category, index string) (json.RawMessage, error)
	Search(ctx context.Context, category, name string) ([]dndapi.Reference, error)
}

// Request is one search.
type Request struct {
	Query    string
	Enhanced string
	Terms    []string
	Weights  category.WeightMap
	Limit    int
}

// CategoryResult reports what happened in one category.
type CategoryResult struct {
	Category lexicon.Category `json:"category"`
	Weight   float64          `json:"weight"`
	Hits     int              `json:"hits"`
	Cached   bool             `json:"cached"`
	Error    string           `json:"error,omitempty"`
}

type SearchResult struct {
	Query         string             `json:"query"`
	EnhancedQuery string             `json:"enhanced_query"`
	Terms         []string           `json:"terms"`
	TotalHits     int                `json:"total_hits"`
	Results       []ranker.ScoredRef `json:"results"`
	Categories    []CategoryResult   `json:"categories"`
	CacheHits     int                `json:"cache_hits"`
	TookMs        int64              `json:"took_ms"`
}

type Executor struct {
	source  Source
	cache   *cache.Cache
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an executor. c and m may be nil.
func New(source Source, c *cache.Cache, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 4
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	return &Executor{
		source:  source,
		cache:   c,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Limit clamps a requested result count to the configured bounds.
func (e *Executor) Limit(n int) int {
	if n <= 0 {
		return e.cfg.DefaultLimit
	}
	return min(n, e.cfg.MaxResults)
}

// SelectCategories returns the categories to query, highest weight first: all
// of them for a uniform map, otherwise those at or above the cutoff.
func (e *Executor) SelectCategories(w category.WeightMap) []category.CategoryWeight {
	ranked := w.Ranked()
	if w.IsUniform() {
		return ranked
	}
	out := make([]category.CategoryWeight, 0, len(ranked))
	for _, cw := range ranked {
		if cw.Weight >= e.cfg.CategoryCutoff {
			out = append(out, cw)
		}
	}
	if len(out) == 0 && len(ranked) > 0 {
		out = append(out, ranked[0])
	}
	return out
}

// Execute fans out over the selected categories. Failing categories are
// reported in the result; the search fails only when every category fails.
func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	limit := e.Limit(req.Limit)
	selected := e.SelectCategories(req.Weights)

	result := &SearchResult{
		Query:         req.Query,
		EnhancedQuery: req.Enhanced,
		Terms:         req.Terms,
		Results:       []ranker.ScoredRef{},
		Categories:    make([]CategoryResult, len(selected)),
	}
	if result.Terms == nil {
		result.Terms = []string{}
	}
	if len(req.Terms) == 0 || len(selected) == 0 {
		result.Categories = result.Categories[:0]
		e.observe(result, "zero_result", start)
		return result, nil
	}

	lists := make([][]ranker.ScoredRef, len(selected))
	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentQueries)
	for i, cw := range selected {
		g.Go(func() error {
			cr := CategoryResult{Category: cw.Category, Weight: cw.Weight}
			sctx, span := tracing.StartChildSpan(gctx, "category:"+string(cw.Category))
			defer span.End()
			refs, hit, err := e.list(sctx, cw.Category)
			span.SetAttr("cached", hit)
			span.RecordError(err)
			if err != nil {
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cr.Error = err.Error()
				e.logger.Warn("category search failed", "category", cw.Category, "error", err)
				result.Categories[i] = cr
				return nil
			}
			lists[i] = ranker.Rank(cw.Category, refs, req.Terms, cw.Weight, limit)
			cr.Hits = len(lists[i])
			cr.Cached = hit
			result.Categories[i] = cr
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(selected) {
		e.observe(result, "error", start)
		return nil, fmt.Errorf("all %d categories failed: %w", len(selected), firstErr)
	}

	for i, l := range lists {
		result.TotalHits += len(l)
		if result.Categories[i].Cached {
			result.CacheHits++
		}
	}
	result.Results = merger.Merge(lists, limit)

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	e.observe(result, resultType, start)
	e.logger.Info("search executed",
		"query", req.Query,
		"terms", req.Terms,
		"categories", len(selected),
		"total_hits", result.TotalHits,
		"results", len(result.Results),
		"took_ms", result.TookMs,
	)
	return result, nil
}

// Entry fetches one full entry document through the cache.
func (e *Executor) Entry(ctx context.Context, cat lexicon.Category, index string) (json.RawMessage, bool, error) {
	idx := dndapi.NormalizeIndex(index)
	fetch := func(ctx context.Context) ([]byte, error) {
		return resilience.Timeout(ctx, e.cfg.TimeoutPerCategory, "entry "+string(cat), func(ctx context.Context) ([]byte, error) {
			return e.source.Get(ctx, string(cat), idx)
		})
	}
	if e.cache == nil {
		raw, err := fetch(ctx)
		return raw, false, err
	}
	raw, hit, err := e.cache.GetOrCompute(ctx, cache.Key(string(cat), "entry", idx), fetch)
	return raw, hit, err
}

// List returns every entry of one category through the cache.
func (e *Executor) List(ctx context.Context, cat lexicon.Category) ([]dndapi.Reference, bool, error) {
	return e.list(ctx, cat)
}

// SearchCategory returns the entries of one category whose name contains
// name, as matched by the rules API.
func (e *Executor) SearchCategory(ctx context.Context, cat lexicon.Category, name string) ([]dndapi.Reference, bool, error) {
	name = strings.Join(strings.Fields(strings.ToLower(name)), " ")
	fetch := func(ctx context.Context) ([]dndapi.Reference, error) {
		return resilience.Timeout(ctx, e.cfg.TimeoutPerCategory, "search "+string(cat), func(ctx context.Context) ([]dndapi.Reference, error) {
			return e.source.Search(ctx, string(cat), name)
		})
	}
	if e.cache == nil || name == "" {
		refs, err := fetch(ctx)
		return refs, false, err
	}
	return cache.GetOrComputeJSON(ctx, e.cache, cache.Key(string(cat), "search", name), fetch)
}

// Prefetch lists cats into the cache so the first searches after startup
// do not wait on the rules API. Every category is tried; the count of warmed
// categories is returned with the joined failures.
func (e *Executor) Prefetch(ctx context.Context, cats []lexicon.Category) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	var (
		g      errgroup.Group
		mu     sync.Mutex
		warmed int
		errs   []error
	)
	g.SetLimit(e.cfg.MaxConcurrentQueries)
	for _, cat := range cats {
		g.Go(func() error {
			refs, hit, err := e.list(ctx, cat)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("prefetching %s: %w", cat, err))
				return nil
			}
			warmed++
			e.logger.Debug("category prefetched", "category", cat, "entries", len(refs), "cached", hit)
			return nil
		})
	}
	g.Wait()
	return warmed, errors.Join(errs...)
}

func (e *Executor) list(ctx context.Context, cat lexicon.Category) ([]dndapi.Reference, bool, error) {
	fetch := func(ctx context.Context) ([]dndapi.Reference, error) {
		return resilience.Timeout(ctx, e.cfg.TimeoutPerCategory, "list "+string(cat), func(ctx context.Context) ([]dndapi.Reference, error) {
			return e.source.List(ctx, string(cat))
		})
	}
	if e.cache == nil {
		refs, err := fetch(ctx)
		return refs, false, err
	}
	return cache.GetOrComputeJSON(ctx, e.cache, cache.Key(string(cat), "list"), fetch)
}

func (e *Executor) observe(result *SearchResult, resultType string, start time.Time) {
	result.TookMs = time.Since(start).Milliseconds()
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(strconv.Itoa(len(result.Categories))).Observe(time.Since(start).Seconds())
	if resultType != "error" {
		e.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
}

// Terms extracts the distinct search terms of an enhanced query, dropping
// stop words and single characters.
func Terms(enhanced string, lex *lexicon.Lexicon) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, tok := range ranker.Tokens(enhanced) {
		if len(tok) < 2 || seen[tok] || (lex != nil && lex.IsStopWord(tok)) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
