// Package cache fronts the rules API with a TTL cache. Entries are scoped by
// category so one category can be invalidated without touching the others,
// and concurrent misses for the same key share a single upstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
)

const keyPrefix = "dnd:"

// Store is the byte-level backend. Get reports a miss with ok == false and a
// nil error.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Count(ctx context.Context, prefix string) (int64, error)
}

// Stats reports cache effectiveness since start.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int64   `json:"entries"`
	Backend string  `json:"backend"`
}

type Cache struct {
	store   Store
	backend string
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps store. backend names the store in Stats; m may be nil.
func New(store Store, backend string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store:   store,
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "response-cache", "backend", backend),
	}
}

// Key builds a cache key scoped to a category. The remaining parts are
// normalized and hashed.
func Key(scope string, parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "\x00")))
	return keyPrefix + strings.ToLower(scope) + ":" + hex.EncodeToString(sum[:16])
}

// GetOrCompute returns the cached bytes for key, or runs compute, stores its
// result and returns it. The bool reports a cache hit. Backend failures are
// logged and treated as misses.
//
// Concurrent callers for one key share a single compute. It runs detached
// from the first caller's cancellation but keeps its deadline, so a client
// that disconnects only abandons its own wait.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if val, ok := c.get(ctx, key); ok {
		c.hit()
		return val, true, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			sctx, cancel = context.WithDeadline(sctx, deadline)
			defer cancel()
		}
		if val, ok := c.get(sctx, key); ok {
			return val, nil
		}
		val, err := compute(sctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(sctx, key, val, c.ttl); err != nil {
			c.logger.Error("cache set failed", "key", key, "error", err)
		}
		return val, nil
	})
	c.miss()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.logger.Debug("shared in-flight computation", "key", key)
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// GetOrComputeJSON is GetOrCompute for JSON-encoded values.
func GetOrComputeJSON[T any](ctx context.Context, c *Cache, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var out T
	raw, hit, err := c.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decoding cached value: %w", err)
	}
	return out, hit, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, ok
}

// Invalidate drops every entry of one category, or all entries when scope is
// empty. It returns the number of keys removed.
func (c *Cache) Invalidate(ctx context.Context, scope string) (int64, error) {
	prefix := keyPrefix
	if scope != "" {
		prefix += strings.ToLower(scope) + ":"
	}
	deleted, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "scope", scope, "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns counters and the current entry count.
func (c *Cache) Stats(ctx context.Context) Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Backend: c.backend}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	n, err := c.store.Count(ctx, keyPrefix)
	if err != nil {
		c.logger.Warn("counting cache entries failed", "error", err)
		n = -1
	}
	s.Entries = n
	return s
}

func (c *Cache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
