package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	topLimit          = 10
)

// Stats is a point-in-time view of everything the aggregator has seen.
type Stats struct {
	TotalEnhancements int64        `json:"total_enhancements"`
	ChangedQueries    int64        `json:"changed_queries"`
	TotalExpansions   int64        `json:"total_expansions"`
	TotalCorrections  int64        `json:"total_corrections"`
	TotalSpecialTerms int64        `json:"total_special_terms"`
	UniformWeights    int64        `json:"uniform_weights"`
	Enhance           LatencyStats `json:"enhance_latency_us"`

	TotalSearches   int64        `json:"total_searches"`
	ZeroResultCount int64        `json:"zero_result_count"`
	CacheHits       int64        `json:"cache_hits"`
	Search          LatencyStats `json:"search_latency_ms"`

	TopQueries        []QueryCount `json:"top_queries"`
	TopExpansions     []QueryCount `json:"top_expansions"`
	TopCorrections    []QueryCount `json:"top_corrections"`
	TopCategories     []QueryCount `json:"top_categories"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
}

// LatencyStats summarizes a latency sample window. Units depend on the field
// it is stored under.
type LatencyStats struct {
	Avg float64 `json:"avg"`
	P50 int64   `json:"p50"`
	P95 int64   `json:"p95"`
	P99 int64   `json:"p99"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running totals. It is safe for concurrent
// use and doubles as an in-process Sink when Kafka is disabled.
type Aggregator struct {
	mu sync.RWMutex

	enhancements, changed, expansions  int64
	corrections, specialTerms, uniform int64
	searches, zeroResults, cacheHits   int64

	enhanceLatency *window
	searchLatency  *window

	queries     map[string]int64
	expanded    map[string]int64
	corrected   map[string]int64
	categories  map[string]int64
	zeroQueries map[string]int64

	startTime time.Time
	now       func() time.Time
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		enhanceLatency: newWindow(maxLatencySamples),
		searchLatency:  newWindow(maxLatencySamples),
		queries:        make(map[string]int64),
		expanded:       make(map[string]int64),
		corrected:      make(map[string]int64),
		categories:     make(map[string]int64),
		zeroQueries:    make(map[string]int64),
		startTime:      time.Now(),
		now:            time.Now,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// Write records a batch, satisfying Sink.
func (a *Aggregator) Write(_ context.Context, events []Event) error {
	for _, ev := range events {
		a.Record(ev)
	}
	return nil
}

// HandleMessage is the kafka.MessageHandler for the analytics topic.
func (a *Aggregator) HandleMessage(_ context.Context, msg kafka.Message) error {
	ev, err := Decode(msg.Type, msg.Value)
	if err != nil {
		return err
	}
	a.Record(ev)
	return nil
}

// Record folds a single event into the totals.
func (a *Aggregator) Record(ev Event) {
	switch e := ev.(type) {
	case EnhancementEvent:
		a.recordEnhancement(e)
	case *EnhancementEvent:
		a.recordEnhancement(*e)
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	default:
		a.logger.Warn("unhandled analytics event", "type", ev.EventType())
	}
}

func (a *Aggregator) recordEnhancement(e EnhancementEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.enhancements++
	if len(e.Expansions) > 0 || len(e.Corrections) > 0 {
		a.changed++
	}
	a.expansions += int64(len(e.Expansions))
	a.corrections += int64(len(e.Corrections))
	a.specialTerms += int64(e.SpecialTerms)
	a.enhanceLatency.add(e.LatencyUs)

	if q := normalizeQuery(e.Query); q != "" {
		a.queries[q]++
	}
	for _, x := range e.Expansions {
		a.expanded[x]++
	}
	for _, c := range e.Corrections {
		a.corrected[c]++
	}
	if e.Uniform || e.TopCategory == "" {
		a.uniform++
	} else {
		a.categories[e.TopCategory]++
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.searches++
	a.cacheHits += int64(e.CacheHits)
	a.searchLatency.add(e.LatencyMs)
	if e.TotalHits == 0 {
		a.zeroResults++
		if q := normalizeQuery(e.Query); q != "" {
			a.zeroQueries[q]++
		}
	}
}

// Stats returns a snapshot of the aggregated state.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalEnhancements: a.enhancements,
		ChangedQueries:    a.changed,
		TotalExpansions:   a.expansions,
		TotalCorrections:  a.corrections,
		TotalSpecialTerms: a.specialTerms,
		UniformWeights:    a.uniform,
		Enhance:           a.enhanceLatency.summary(),
		TotalSearches:     a.searches,
		ZeroResultCount:   a.zeroResults,
		CacheHits:         a.cacheHits,
		Search:            a.searchLatency.summary(),
		TopQueries:        topN(a.queries, topLimit),
		TopExpansions:     topN(a.expanded, topLimit),
		TopCorrections:    topN(a.corrected, topLimit),
		TopCategories:     topN(a.categories, topLimit),
		ZeroResultQueries: topN(a.zeroQueries, topLimit),
		Since:             a.startTime.UTC(),
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalEnhancements) / elapsed
	}
	return stats
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// window keeps the most recent samples in a ring.
type window struct {
	samples []int64
	next    int
	full    bool
}

func newWindow(size int) *window {
	return &window{samples: make([]int64, size)}
}

func (w *window) add(v int64) {
	w.samples[w.next] = v
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *window) summary() LatencyStats {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return LatencyStats{}
	}
	sorted := make([]int64, n)
	copy(sorted, w.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, l := range sorted {
		sum += l
	}
	return LatencyStats{
		Avg: float64(sum) / float64(n),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
