// Package health runs dependency checks concurrently and serves the
// aggregate as liveness and readiness reports.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Score maps a status to the value exported on the component health gauge.
func (s Status) Score() float64 {
	switch s {
	case StatusUp:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

func (s Status) worse(than Status) bool {
	return s.Score() < than.Score()
}

// Check tests a single dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
}

// Ping adapts an error-returning ping into a Check. A failing ping reports
// failStatus: StatusDown for required dependencies, StatusDegraded for
// optional ones such as the response cache.
func Ping(ping func(ctx context.Context) error, failStatus Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failStatus, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Option configures a Checker.
type Option func(*Checker)

// WithCheckTimeout bounds each individual check. A check that overruns is
// reported down. Defaults to two seconds.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithCacheTTL reuses the last report for d, so frequent polls do not hit
// Redis or Postgres on every request.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) { c.ttl = d }
}

// WithObserver is called with every component result after a run.
func WithObserver(fn func(name string, h ComponentHealth)) Option {
	return func(c *Checker) { c.observe = fn }
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	ttl     time.Duration
	observe func(string, ComponentHealth)
	started time.Time
	logger  *slog.Logger

	cacheMu  sync.Mutex
	last     Report
	lastTime time.Time
	now      func() time.Time
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:  make(map[string]Check),
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "health"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Register adds or replaces a named check and drops any cached report.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()

	c.cacheMu.Lock()
	c.lastTime = time.Time{}
	c.cacheMu.Unlock()
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	if c.ttl > 0 {
		c.cacheMu.Lock()
		defer c.cacheMu.Unlock()
		if !c.lastTime.IsZero() && c.now().Sub(c.lastTime) < c.ttl {
			return c.last
		}
	}

	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	now := c.now()
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Uptime:     now.Sub(c.started).Round(time.Second).String(),
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for name, check := range checks {
		g.Go(func() error {
			result := c.runOne(ctx, name, check)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for name, comp := range report.Components {
		if comp.Status == StatusDown {
			c.logger.Warn("component down", "name", name, "message", comp.Message)
		}
		if comp.Status.worse(report.Status) {
			report.Status = comp.Status
		}
		if c.observe != nil {
			c.observe(name, comp)
		}
	}

	if c.ttl > 0 {
		c.last, c.lastTime = report, c.now()
	}
	return report
}

// runOne applies the per-check deadline and turns a panic into a down
// result.
func (c *Checker) runOne(ctx context.Context, name string, check Check) ComponentHealth {
	start := time.Now()
	result, err := resilience.Timeout(ctx, c.timeout, "health "+name, func(ctx context.Context) (h ComponentHealth, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("check panicked: %v", r)
			}
		}()
		return check(ctx), nil
	})
	if err != nil {
		result = ComponentHealth{Status: StatusDown, Message: err.Error()}
	}
	result.Duration = time.Since(start).Round(time.Microsecond).String()
	return result
}

// LiveHandler answers liveness requests without running checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": c.now().Sub(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness requests. A degraded report is still ready:
// the navigator serves without its cache.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
