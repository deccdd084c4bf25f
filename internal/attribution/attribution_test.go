package attribution

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/category"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/synonyms"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/ranker"
)

func TestManagerAddAndGet(t *testing.T) {
	m := NewManager()
	id := m.Add(SourceAttribution{
		Source:         "Player's Handbook",
		APIEndpoint:    "/api/spells/fireball",
		Confidence:     ConfidenceHigh,
		RelevanceScore: 95,
		ToolUsed:       "spell_search",
	})
	require.NotEmpty(t, id)

	got, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Player's Handbook", got.Source)
	assert.False(t, got.CreatedAt.IsZero())

	other := m.Add(SourceAttribution{APIEndpoint: "/api/monsters/owlbear"})
	assert.NotEqual(t, id, other)
	o, _ := m.Get(other)
	assert.Equal(t, DefaultSource, o.Source)

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.Len(t, m.All(), 2)
}

func TestManagerConcurrentAdds(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Add(SourceAttribution{ToolUsed: "search"})
		}()
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, a := range m.All() {
		ids[a.ID] = true
	}
	assert.Len(t, ids, 50)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		best      float64
		corrected bool
		want      ConfidenceLevel
	}{
		{"best result", 2, 2, false, ConfidenceHigh},
		{"close second", 1.7, 2, false, ConfidenceHigh},
		{"middling", 1.2, 2, false, ConfidenceMedium},
		{"weak", 0.4, 2, false, ConfidenceLow},
		{"no score", 0, 2, false, ConfidenceUncertain},
		{"best but corrected", 2, 2, true, ConfidenceMedium},
		{"weak and corrected", 0.4, 2, true, ConfidenceUncertain},
		{"uncertain stays", 0, 0, true, ConfidenceUncertain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Confidence(tt.score, tt.best, tt.corrected))
		})
	}
}

func TestFromResults(t *testing.T) {
	m := NewManager()
	results := []ranker.ScoredRef{
		{Category: lexicon.CategorySpells, Index: "fireball", URL: "/api/spells/fireball", Score: 1.25},
		{Category: lexicon.CategorySpells, Index: "delayed-blast-fireball", Score: 0.5},
	}
	report := enhancer.Report{Corrections: []fuzzy.Correction{{Original: "firball", Corrected: "fireball", Score: 0.875}}}

	got := FromResults(m, results, report, "search")
	require.Len(t, got, 2)
	assert.Equal(t, "/api/spells/fireball", got[0].APIEndpoint)
	assert.Equal(t, ConfidenceMedium, got[0].Confidence)
	assert.Equal(t, 100.0, got[0].RelevanceScore)
	assert.Equal(t, "/api/spells/delayed-blast-fireball", got[1].APIEndpoint)
	assert.Equal(t, 40.0, got[1].RelevanceScore)
	assert.Equal(t, ConfidenceUncertain, got[1].Confidence)
	assert.NotEmpty(t, got[0].ID)
	assert.Len(t, m.All(), 2)
}

func TestExplain(t *testing.T) {
	weights := category.Uniform(category.DefaultFloor)
	weights[lexicon.CategoryMonsters] = 1
	report := enhancer.Report{
		Synonyms:        []synonyms.Expansion{{Original: "AC", Canonical: "armor class"}},
		Corrections:     []fuzzy.Correction{{Original: "firball", Corrected: "fireball", Score: 0.875}},
		SpecialTerms:    []enhancer.SpecialTerm{{Text: "2d6+3", Kind: lexicon.KindDice}},
		CategoryWeights: weights,
	}
	assert.Equal(t, []string{
		"corrected firball → fireball (0.88)",
		"expanded AC → armor class",
		"preserved 2d6+3 (dice)",
		"prioritized monsters",
	}, Explain(report))
}

func TestExplainUniformAndEmpty(t *testing.T) {
	notes := Explain(enhancer.Report{CategoryWeights: category.Uniform(category.DefaultFloor)})
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestExplainFromPipeline(t *testing.T) {
	lex, err := lexicon.Default()
	require.NoError(t, err)
	e, err := enhancer.New(lex)
	require.NoError(t, err)

	_, report := e.Enhance("What is the AC of a dragon?", enhancer.DefaultConfig())
	notes := Explain(report)
	assert.Contains(t, notes, "expanded AC → armor class")
	assert.Contains(t, notes, "prioritized monsters")
}
