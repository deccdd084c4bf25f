package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/dndapi"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/category"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/tracing"
)

type fakeSource struct {
	mu      sync.Mutex
	lists   map[string][]dndapi.Reference
	fail    map[string]error
	calls   map[string]int
	entries map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		lists: map[string][]dndapi.Reference{
			"spells": {
				{Index: "fireball", Name: "Fireball"},
				{Index: "fire-bolt", Name: "Fire Bolt"},
				{Index: "shield", Name: "Shield"},
			},
			"monsters": {
				{Index: "adult-red-dragon", Name: "Adult Red Dragon"},
				{Index: "fire-giant", Name: "Fire Giant"},
			},
			"equipment": {
				{Index: "shield", Name: "Shield"},
				{Index: "longsword", Name: "Longsword"},
			},
		},
		fail:    map[string]error{},
		calls:   map[string]int{},
		entries: map[string]string{"spells/fireball": `{"index":"fireball","level":3}`},
	}
}

func (f *fakeSource) List(_ context.Context, cat string) ([]dndapi.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cat]++
	if err := f.fail[cat]; err != nil {
		return nil, err
	}
	return f.lists[cat], nil
}

func (f *fakeSource) Get(_ context.Context, cat, index string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cat+"/"+index]++
	if doc, ok := f.entries[cat+"/"+index]; ok {
		return json.RawMessage(doc), nil
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) Search(_ context.Context, cat, name string) ([]dndapi.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cat+"?"+name]++
	if err := f.fail[cat]; err != nil {
		return nil, err
	}
	out := []dndapi.Reference{}
	for _, ref := range f.lists[cat] {
		if strings.Contains(strings.ToLower(ref.Name), name) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func weights(pairs map[lexicon.Category]float64) category.WeightMap {
	w := category.Uniform(category.DefaultFloor)
	for c, v := range pairs {
		w[c] = v
	}
	return w
}

func testConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxResults:           50,
		DefaultLimit:         10,
		CategoryCutoff:       0.3,
		TimeoutPerCategory:   time.Second,
		MaxConcurrentQueries: 2,
	}
}

func TestSelectCategories(t *testing.T) {
	e := New(newFakeSource(), nil, testConfig(), nil)

	sel := e.SelectCategories(weights(map[lexicon.Category]float64{
		lexicon.CategoryMonsters:  1,
		lexicon.CategoryEquipment: 0.5,
	}))
	require.Len(t, sel, 2)
	assert.Equal(t, lexicon.CategoryMonsters, sel[0].Category)
	assert.Equal(t, lexicon.CategoryEquipment, sel[1].Category)

	all := e.SelectCategories(category.Uniform(category.DefaultFloor))
	assert.Len(t, all, len(lexicon.AllCategories()))
	assert.Equal(t, lexicon.CategorySpells, all[0].Category)

	low := New(newFakeSource(), nil, config.SearchConfig{CategoryCutoff: 0.9}, nil)
	one := low.SelectCategories(weights(map[lexicon.Category]float64{lexicon.CategoryRaces: 0.5}))
	require.Len(t, one, 1)
	assert.Equal(t, lexicon.CategoryRaces, one[0].Category)
}

func TestExecuteRanksAcrossCategories(t *testing.T) {
	src := newFakeSource()
	m := metrics.New()
	e := New(src, nil, testConfig(), m)

	res, err := e.Execute(context.Background(), Request{
		Query:    "fire",
		Enhanced: "fire",
		Terms:    []string{"fire"},
		Weights: weights(map[lexicon.Category]float64{
			lexicon.CategorySpells:   1,
			lexicon.CategoryMonsters: 0.5,
		}),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "fire-bolt", res.Results[0].Index)
	assert.Equal(t, lexicon.CategorySpells, res.Results[0].Category)
	assert.Equal(t, "fire-giant", res.Results[1].Index)
	assert.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Categories, 2)
	assert.Equal(t, 1, res.Categories[0].Hits)
	assert.Zero(t, src.calls["equipment"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestExecutePartialFailure(t *testing.T) {
	src := newFakeSource()
	src.fail["monsters"] = errors.New("upstream down")
	e := New(src, nil, testConfig(), nil)

	res, err := e.Execute(context.Background(), Request{
		Terms: []string{"shield"},
		Weights: weights(map[lexicon.Category]float64{
			lexicon.CategoryMonsters:  1,
			lexicon.CategoryEquipment: 0.8,
		}),
	})
	require.NoError(t, err)
	require.Len(t, res.Categories, 2)
	assert.Equal(t, "upstream down", res.Categories[0].Error)
	require.Len(t, res.Results, 1)
	assert.Equal(t, lexicon.CategoryEquipment, res.Results[0].Category)
}

func TestExecuteTracesEachCategory(t *testing.T) {
	src := newFakeSource()
	src.fail["monsters"] = errors.New("upstream down")
	e := New(src, nil, testConfig(), nil)

	ctx, root := tracing.StartSpan(context.Background(), "search", "trace-1")
	_, err := e.Execute(ctx, Request{
		Terms: []string{"shield"},
		Weights: weights(map[lexicon.Category]float64{
			lexicon.CategoryMonsters:  1,
			lexicon.CategoryEquipment: 0.8,
		}),
	})
	require.NoError(t, err)

	spans := map[string]*tracing.Span{}
	for _, s := range root.ChildSpans() {
		spans[s.Name] = s
	}
	require.Len(t, spans, 2)
	assert.EqualError(t, spans["category:monsters"].Err(), "upstream down")
	assert.NoError(t, spans["category:equipment"].Err())
	assert.Equal(t, false, spans["category:equipment"].Attributes()["cached"])
}

type stalledSource struct{ fakeSource }

func (s *stalledSource) List(ctx context.Context, _ string) ([]dndapi.Reference, error) {
	time.Sleep(200 * time.Millisecond)
	return nil, ctx.Err()
}

func TestExecuteCategoryTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TimeoutPerCategory = 10 * time.Millisecond
	e := New(&stalledSource{}, nil, cfg, nil)

	_, err := e.Execute(context.Background(), Request{
		Terms:   []string{"fireball"},
		Weights: weights(map[lexicon.Category]float64{lexicon.CategorySpells: 1}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestExecuteAllFail(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("upstream down")
	src.fail["spells"] = boom
	e := New(src, nil, testConfig(), nil)

	_, err := e.Execute(context.Background(), Request{
		Terms:   []string{"fireball"},
		Weights: weights(map[lexicon.Category]float64{lexicon.CategorySpells: 1}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestExecuteNoTerms(t *testing.T) {
	e := New(newFakeSource(), nil, testConfig(), nil)
	res, err := e.Execute(context.Background(), Request{Weights: category.Uniform(0.1)})
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.NotNil(t, res.Terms)
	assert.Empty(t, res.Categories)
	assert.Zero(t, res.TotalHits)
}

func TestExecuteUsesCache(t *testing.T) {
	src := newFakeSource()
	c := cache.New(cache.NewMemoryStore(), "memory", time.Hour, nil)
	e := New(src, c, testConfig(), nil)
	req := Request{
		Terms:   []string{"dragon"},
		Weights: weights(map[lexicon.Category]float64{lexicon.CategoryMonsters: 1}),
	}

	first, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)
	assert.True(t, second.Categories[0].Cached)
	assert.Equal(t, 1, src.calls["monsters"])
	assert.Equal(t, first.Results, second.Results)
}

func TestEntry(t *testing.T) {
	src := newFakeSource()
	c := cache.New(cache.NewMemoryStore(), "memory", time.Hour, nil)
	e := New(src, c, testConfig(), nil)

	raw, hit, err := e.Entry(context.Background(), lexicon.CategorySpells, "Fireball")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"index":"fireball","level":3}`, string(raw))

	_, hit, err = e.Entry(context.Background(), lexicon.CategorySpells, "fireball")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, src.calls["spells/fireball"])
}

func TestListAndSearchCategoryUseCache(t *testing.T) {
	src := newFakeSource()
	c := cache.New(cache.NewMemoryStore(), "memory", time.Hour, nil)
	e := New(src, c, testConfig(), nil)
	ctx := context.Background()

	refs, hit, err := e.List(ctx, lexicon.CategoryEquipment)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, refs, 2)
	_, hit, err = e.List(ctx, lexicon.CategoryEquipment)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, src.calls["equipment"])

	refs, hit, err = e.SearchCategory(ctx, lexicon.CategorySpells, "  FIRE ")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []dndapi.Reference{{Index: "fireball", Name: "Fireball"}, {Index: "fire-bolt", Name: "Fire Bolt"}}, refs)

	_, hit, err = e.SearchCategory(ctx, lexicon.CategorySpells, "fire")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, src.calls["spells?fire"])
}

func TestPrefetchWarmsListCache(t *testing.T) {
	src := newFakeSource()
	src.fail["monsters"] = errors.New("connection refused")
	c := cache.New(cache.NewMemoryStore(), "memory", time.Hour, nil)
	e := New(src, c, testConfig(), nil)

	warmed, err := e.Prefetch(context.Background(), []lexicon.Category{
		lexicon.CategorySpells, lexicon.CategoryMonsters, lexicon.CategoryEquipment,
	})
	assert.Equal(t, 2, warmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefetching monsters")

	_, hit, err := e.List(context.Background(), lexicon.CategorySpells)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, src.calls["spells"])

	none, err := New(src, nil, testConfig(), nil).Prefetch(context.Background(), lexicon.AllCategories())
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestLimit(t *testing.T) {
	e := New(newFakeSource(), nil, config.SearchConfig{MaxResults: 20, DefaultLimit: 5}, nil)
	assert.Equal(t, 5, e.Limit(0))
	assert.Equal(t, 7, e.Limit(7))
	assert.Equal(t, 20, e.Limit(100))
}

func TestTerms(t *testing.T) {
	lex, err := lexicon.Default()
	require.NoError(t, err)
	got := Terms("What is the AC of a dragon? armor class dragon", lex)
	assert.Equal(t, []string{"ac", "dragon", "armor", "class"}, got)
	assert.Empty(t, Terms("", lex))
}
