// Package dndapi is a client for the D&D 5e SRD rules API. Every call goes
// through a retry loop, a circuit breaker and a per-attempt timeout.
package dndapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

const maxBodyBytes = 4 << 20

// Reference is an entry summary as returned by list endpoints.
type Reference struct {
	Index string `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

type listResponse struct {
	Count   int         `json:"count"`
	Results []Reference `json:"results"`
}

// Client talks to the rules API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records upstream calls and breaker state.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client from cfg.
func New(cfg config.DNDAPIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
		},
		timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "dndapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = resilience.NewCircuitBreaker("dndapi", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
		OnStateChange:    c.onStateChange,
		IsFailure:        isFailure,
	})
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues("dndapi").Set(float64(resilience.StateClosed))
	}
	return c
}

// Breaker exposes the circuit breaker for health checks.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Get returns the raw JSON document for one entry, e.g. spells/fireball.
func (c *Client) Get(ctx context.Context, category, index string) (json.RawMessage, error) {
	cat, err := parseCategory(category)
	if err != nil {
		return nil, err
	}
	idx := NormalizeIndex(index)
	if idx == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "index is required")
	}
	body, err := c.fetch(ctx, cat, "/"+string(cat)+"/"+url.PathEscape(idx))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON for %s/%s", apperrors.ErrUpstream, cat, idx)
	}
	return json.RawMessage(body), nil
}

// List returns every entry of a category.
func (c *Client) List(ctx context.Context, category string) ([]Reference, error) {
	cat, err := parseCategory(category)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, cat, "/"+string(cat))
}

// Search returns the entries of a category whose name contains name.
func (c *Client) Search(ctx context.Context, category, name string) ([]Reference, error) {
	cat, err := parseCategory(category)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "search name is required")
	}
	return c.list(ctx, cat, "/"+string(cat)+"?name="+url.QueryEscape(name))
}

// Status describes the rules API as seen by a direct request to its root.
type Status struct {
	Status         string   `json:"status"`
	StatusCode     int      `json:"status_code,omitempty"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	Endpoints      []string `json:"available_endpoints,omitempty"`
	Breaker        string   `json:"breaker"`
	BaseURL        string   `json:"base_url"`
	Message        string   `json:"message,omitempty"`
}

// Status requests the API root once, outside retry and the breaker, so an
// open breaker does not hide a recovered upstream.
func (c *Client) Status(ctx context.Context) Status {
	st := Status{Status: "error", Breaker: c.breaker.State().String(), BaseURL: c.baseURL}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		st.Message = "building request failed"
		return st
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	st.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		c.logger.Warn("rules api status check failed", "error", err)
		st.Message = "rules api unreachable"
		return st
	}
	defer resp.Body.Close()
	st.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		st.Message = fmt.Sprintf("rules api returned %d", resp.StatusCode)
		return st
	}
	var root map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&root); err != nil {
		st.Message = "rules api root is not a JSON object"
		return st
	}
	st.Endpoints = slices.Sorted(maps.Keys(root))
	st.Status = "online"
	return st
}

func (c *Client) list(ctx context.Context, cat lexicon.Category, path string) ([]Reference, error) {
	body, err := c.fetch(ctx, cat, path)
	if err != nil {
		return nil, err
	}
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding %s list: %v", apperrors.ErrUpstream, cat, err)
	}
	if resp.Results == nil {
		resp.Results = []Reference{}
	}
	return resp.Results, nil
}

// fetch performs a GET with retry, breaker and timeout around each attempt.
func (c *Client) fetch(ctx context.Context, cat lexicon.Category, path string) ([]byte, error) {
	var body []byte
	op := "GET " + path
	err := resilience.Retry(ctx, op, c.retry, func() error {
		err := c.breaker.Execute(func() error {
			b, err := resilience.Timeout(ctx, c.timeout, op, func(ctx context.Context) ([]byte, error) {
				return c.do(ctx, cat, path)
			})
			if err == nil {
				body = b
			}
			return err
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.observe(cat, "circuit_open")
			return resilience.Permanent(fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err))
		}
		return err
	})
	if err != nil {
		c.logger.Debug("rules api request failed", "path", path, "error", err)
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, cat lexicon.Category, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(cat, "error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.observe(cat, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", apperrors.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "%s not found", path))
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstream, path, resp.StatusCode)
		return nil, resilience.After(err, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstream, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, resilience.Permanent(fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstream, path, resp.StatusCode))
	}
	return body, nil
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms. Anything
// unparseable or in the past yields zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func (c *Client) observe(cat lexicon.Category, status string) {
	if c.metrics != nil {
		c.metrics.UpstreamRequestsTotal.WithLabelValues(string(cat), status).Inc()
	}
}

func (c *Client) onStateChange(name string, from, to resilience.State) {
	c.logger.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

// isFailure keeps caller mistakes from tripping the breaker.
func isFailure(err error) bool {
	return !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidInput)
}

func parseCategory(name string) (lexicon.Category, error) {
	cat, ok := lexicon.ParseCategory(name)
	if !ok {
		return "", apperrors.Newf(apperrors.ErrInvalidCategory, http.StatusBadRequest, "unknown category %q", name)
	}
	return cat, nil
}

// NormalizeIndex turns an entry name into the API's index form:
// "Adult Red Dragon" becomes "adult-red-dragon" and "Bigby's Hand" becomes
// "bigbys-hand".
func NormalizeIndex(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == '\'' || r == '’':
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}
