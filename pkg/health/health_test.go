package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("lexicon", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("cache", Ping(func(context.Context) error { return errors.New("connection refused") }, StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["cache"].Message)
	assert.NotEmpty(t, report.Components["lexicon"].Duration)
	assert.NotEmpty(t, report.Uptime)

	c.Register("dndapi", Ping(func(context.Context) error { return errors.New("circuit open") }, StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)

	assert.Equal(t, []string{"cache", "dndapi", "lexicon"}, c.Names())
}

func TestSlowCheckIsReportedDown(t *testing.T) {
	c := NewChecker(WithCheckTimeout(10 * time.Millisecond))
	c.Register("postgres", func(context.Context) ComponentHealth {
		time.Sleep(200 * time.Millisecond)
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("lexicon", up)

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["postgres"].Message, "timed out")
	assert.Equal(t, StatusUp, report.Components["lexicon"].Status)
}

func TestPanickingCheckIsReportedDown(t *testing.T) {
	c := NewChecker()
	c.Register("redis", func(context.Context) ComponentHealth { panic("nil client") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check panicked: nil client", report.Components["redis"].Message)
}

func TestReportIsCachedForTTL(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(WithCacheTTL(time.Second))
	c.now = func() time.Time { return now }
	c.Register("redis", func(context.Context) ComponentHealth {
		calls.Add(1)
		return ComponentHealth{Status: StatusUp}
	})

	c.Run(context.Background())
	c.Run(context.Background())
	assert.EqualValues(t, 1, calls.Load())

	now = now.Add(2 * time.Second)
	c.Run(context.Background())
	assert.EqualValues(t, 2, calls.Load())

	c.Register("lexicon", up)
	c.Run(context.Background())
	assert.EqualValues(t, 3, calls.Load())
}

func TestObserverSeesEveryComponent(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]Status{}
	c := NewChecker(WithObserver(func(name string, h ComponentHealth) {
		mu.Lock()
		seen[name] = h.Status
		mu.Unlock()
	}))
	c.Register("lexicon", up)
	c.Register("cache", Ping(func(context.Context) error { return errors.New("down") }, StatusDegraded))
	c.Run(context.Background())

	assert.Equal(t, map[string]Status{"lexicon": StatusUp, "cache": StatusDegraded}, seen)
}

func TestStatusScore(t *testing.T) {
	assert.Equal(t, 1.0, StatusUp.Score())
	assert.Equal(t, 0.5, StatusDegraded.Score())
	assert.Equal(t, 0.0, StatusDown.Score())
	assert.True(t, StatusDown.worse(StatusDegraded))
	assert.False(t, StatusUp.worse(StatusDegraded))
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("lexicon", up)
	c.Register("cache", Ping(func(context.Context) error { return errors.New("down") }, StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("dndapi", Ping(func(context.Context) error { return errors.New("down") }, StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.Equal(t, "0s", body["uptime"])
}
