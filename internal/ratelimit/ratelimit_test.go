package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(limit, window)
	l.now = clock.Now
	return l, clock
}

func TestAllowConsumesAndRefills(t *testing.T) {
	l, clock := newTestLimiter(3, 3*time.Second)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	assert.Equal(t, time.Second, l.RetryAfter())
}

func TestResetAndEvict(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))

	l.Allow("b")
	assert.Equal(t, 2, l.Len())
	clock.Advance(3 * time.Minute)
	l.evict()
	assert.Equal(t, 0, l.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(0, 0)
	l.Stop()
	l.Stop()
	assert.Equal(t, time.Minute, l.RetryAfter())
}
