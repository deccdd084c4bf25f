// Command loadtest drives the navigator's enhancement (or search) endpoint
// with a fixed set of rules questions and reports throughput, latency
// percentiles and status codes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"What is the AC of a dragon?",
	"Tell me about firball",
	"How much damage does 2d6+3 do?",
	"wizzard spell slots at 5th level",
	"best armour for a pally",
	"cr 5 monsters with breath weapon",
	"how does sneak attack work",
	"cost of a longsword in gp",
	"healer spells for a priest",
	"bag of holding weight",
	"dex +2 races with darkvision",
	"magik items that need attunement",
	"beholdr lair actions",
	"counterspell DC",
	"barb rage damage",
}

type Config struct {
	BaseURL     string
	Endpoint    string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	changed   atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

// Record stores one request outcome. status is 0 for transport errors.
func (s *Stats) Record(d time.Duration, status int, changed bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if changed {
		s.changed.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the navigator")
	endpoint := flag.String("endpoint", "enhance", "endpoint to drive: enhance or search")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	if *endpoint != "enhance" && *endpoint != "search" {
		fmt.Fprintf(os.Stderr, "unknown endpoint %q\n", *endpoint)
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Endpoint:    *endpoint,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     defaultQueries,
	}

	fmt.Println("=== Knowledge Navigator Load Test ===")
	fmt.Printf("Target:      %s/api/v1/%s\n", cfg.BaseURL, cfg.Endpoint)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	stats := Run(ctx, cfg, newClient(cfg.Concurrency))
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Run issues requests from cfg.Concurrency workers until ctx is done.
func Run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				start := time.Now()
				status, changed, err := fire(ctx, client, requestURL(cfg, query))
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(time.Since(start), status, changed, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

func requestURL(cfg Config, query string) string {
	u := fmt.Sprintf("%s/api/v1/%s?q=%s", cfg.BaseURL, cfg.Endpoint, url.QueryEscape(query))
	if cfg.Endpoint == "search" {
		u += "&limit=10"
	}
	return u
}

// fire performs one request and reports whether the query was rewritten.
func fire(ctx context.Context, client *http.Client, rawURL string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var body struct {
		Query         string `json:"query"`
		EnhancedQuery string `json:"enhanced_query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, false, nil
	}
	return resp.StatusCode, body.EnhancedQuery != "" && body.EnhancedQuery != body.Query, nil
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	errs := stats.errors.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", errs)
	fmt.Fprintf(w, "Rewritten:       %d\n", stats.changed.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.codes))
	for code, n := range stats.codes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the navigator running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
