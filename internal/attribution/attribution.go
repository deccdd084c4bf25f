// Package attribution records where an answer came from and how much to
// trust it, and explains the query enhancements that shaped a search.
package attribution

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/ranker"
)

// DefaultSource names the rules API.
const DefaultSource = "D&D 5e API (www.dnd5eapi.co)"

// ConfidenceLevel grades how well a source answers the query.
type ConfidenceLevel string

const (
	ConfidenceHigh      ConfidenceLevel = "HIGH"
	ConfidenceMedium    ConfidenceLevel = "MEDIUM"
	ConfidenceLow       ConfidenceLevel = "LOW"
	ConfidenceUncertain ConfidenceLevel = "UNCERTAIN"
)

var ladder = []ConfidenceLevel{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceUncertain}

// Lower returns the next level down. UNCERTAIN stays UNCERTAIN.
func (c ConfidenceLevel) Lower() ConfidenceLevel {
	for i, l := range ladder {
		if l == c && i+1 < len(ladder) {
			return ladder[i+1]
		}
	}
	return ConfidenceUncertain
}

// SourceAttribution ties one piece of returned content to its origin.
type SourceAttribution struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"`
	APIEndpoint    string          `json:"api_endpoint"`
	Confidence     ConfidenceLevel `json:"confidence"`
	RelevanceScore float64         `json:"relevance_score"`
	ToolUsed       string          `json:"tool_used"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Manager collects attributions for one response. It is safe for
// concurrent use.
type Manager struct {
	mu    sync.Mutex
	items []SourceAttribution
	byID  map[string]int
}

func NewManager() *Manager {
	return &Manager{byID: make(map[string]int)}
}

// Add stores a copy of a with a fresh ID and returns the ID.
func (m *Manager) Add(a SourceAttribution) string {
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Source == "" {
		a.Source = DefaultSource
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[a.ID] = len(m.items)
	m.items = append(m.items, a)
	return a.ID
}

func (m *Manager) Get(id string) (SourceAttribution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return SourceAttribution{}, false
	}
	return m.items[i], true
}

// All returns the attributions in insertion order.
func (m *Manager) All() []SourceAttribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SourceAttribution, len(m.items))
	copy(out, m.items)
	return out
}

// Confidence grades a result by its score relative to the best result. Any
// spelling correction in the query lowers the grade one step.
func Confidence(score, best float64, corrected bool) ConfidenceLevel {
	level := ConfidenceUncertain
	if best > 0 && score > 0 {
		switch rel := score / best; {
		case rel >= 0.8:
			level = ConfidenceHigh
		case rel >= 0.5:
			level = ConfidenceMedium
		default:
			level = ConfidenceLow
		}
	}
	if corrected {
		level = level.Lower()
	}
	return level
}

// FromResults attributes each ranked reference. Relevance is the score as a
// percentage of the best score.
func FromResults(m *Manager, results []ranker.ScoredRef, report enhancer.Report, tool string) []SourceAttribution {
	best := 0.0
	for _, r := range results {
		best = max(best, r.Score)
	}
	corrected := len(report.Corrections) > 0
	out := make([]SourceAttribution, 0, len(results))
	for _, r := range results {
		rel := 0.0
		if best > 0 {
			rel = float64(int(r.Score/best*1000+0.5)) / 10
		}
		a := SourceAttribution{
			APIEndpoint:    r.URL,
			Confidence:     Confidence(r.Score, best, corrected),
			RelevanceScore: rel,
			ToolUsed:       tool,
		}
		if a.APIEndpoint == "" {
			a.APIEndpoint = fmt.Sprintf("/api/%s/%s", r.Category, r.Index)
		}
		id := m.Add(a)
		a, _ = m.Get(id)
		out = append(out, a)
	}
	return out
}

// Explain renders the enhancement report as short human-readable notes.
func Explain(report enhancer.Report) []string {
	notes := make([]string, 0, len(report.Synonyms)+len(report.Corrections)+len(report.SpecialTerms)+1)
	for _, c := range report.Corrections {
		notes = append(notes, fmt.Sprintf("corrected %s → %s (%.2f)", c.Original, c.Corrected, c.Score))
	}
	for _, s := range report.Synonyms {
		notes = append(notes, fmt.Sprintf("expanded %s → %s", s.Original, s.Canonical))
	}
	for _, t := range report.SpecialTerms {
		notes = append(notes, fmt.Sprintf("preserved %s (%s)", t.Text, t.Kind))
	}
	if !report.CategoryWeights.IsUniform() {
		if top, _ := report.CategoryWeights.Top(); top != "" {
			notes = append(notes, fmt.Sprintf("prioritized %s", top))
		}
	}
	return notes
}
