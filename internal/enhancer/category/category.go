// Package category scores how relevant each knowledge-base category is to a
// query's final term set. Scores are normalized into [floor, 1] and every
// category is always present.
package category

import (
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
)

// DefaultFloor is the weight given to categories with no affinity.
const DefaultFloor = 0.1

// WeightMap maps every known category to its relative weight.
type WeightMap map[lexicon.Category]float64

// CategoryWeight is one entry of a ranked WeightMap.
type CategoryWeight struct {
	Category lexicon.Category `json:"category"`
	Weight   float64          `json:"weight"`
}

// Uniform returns a WeightMap with floor for every category.
func Uniform(floor float64) WeightMap {
	w := make(WeightMap, len(lexicon.AllCategories()))
	for _, c := range lexicon.AllCategories() {
		w[c] = floor
	}
	return w
}

// Ranked orders categories by weight, highest first, with ties in canonical
// category order.
func (w WeightMap) Ranked() []CategoryWeight {
	out := make([]CategoryWeight, 0, len(w))
	for c, v := range w {
		out = append(out, CategoryWeight{Category: c, Weight: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return lexicon.CategoryIndex(out[i].Category) < lexicon.CategoryIndex(out[j].Category)
	})
	return out
}

// Top returns the highest-weighted category.
func (w WeightMap) Top() (lexicon.Category, float64) {
	r := w.Ranked()
	if len(r) == 0 {
		return "", 0
	}
	return r[0].Category, r[0].Weight
}

// IsUniform reports whether every category carries the same weight, which
// means the query gave no category signal.
func (w WeightMap) IsUniform() bool {
	first, set := 0.0, false
	for _, v := range w {
		if !set {
			first, set = v, true
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (w WeightMap) Clone() WeightMap {
	out := make(WeightMap, len(w))
	for c, v := range w {
		out[c] = v
	}
	return out
}

// Prioritizer accumulates lexicon affinities. It holds no per-call state.
type Prioritizer struct {
	lex   *lexicon.Lexicon
	floor float64
}

// New creates a Prioritizer. A floor outside (0, 1) falls back to
// DefaultFloor.
func New(lex *lexicon.Lexicon, floor float64) *Prioritizer {
	if floor <= 0 || floor >= 1 {
		floor = DefaultFloor
	}
	return &Prioritizer{lex: lex, floor: floor}
}

// Floor returns the floor weight in use.
func (p *Prioritizer) Floor() float64 {
	return p.floor
}

// Weights sums the affinity of every term and every special-notation kind,
// then divides by the largest total. With no affinity at all, every
// category gets the floor weight.
func (p *Prioritizer) Weights(terms []string, kinds []lexicon.Kind) WeightMap {
	cats := lexicon.AllCategories()
	totals := make(map[lexicon.Category]float64, len(cats))
	for _, t := range terms {
		addWeights(totals, p.lex.Affinity(t))
	}
	for _, k := range kinds {
		addWeights(totals, p.lex.KindAffinity(k))
	}

	peak := 0.0
	for _, c := range cats {
		peak = math.Max(peak, totals[c])
	}
	if peak == 0 {
		return Uniform(p.floor)
	}
	out := make(WeightMap, len(cats))
	for _, c := range cats {
		v := math.Round(totals[c]/peak*10000) / 10000
		out[c] = math.Max(v, p.floor)
	}
	return out
}

func addWeights(totals, affinity map[lexicon.Category]float64) {
	for c, w := range affinity {
		totals[c] += w
	}
}

// Terms expands words into every contiguous phrase of up to maxWords words,
// shortest first at each position. Words are normalized.
func Terms(words []string, maxWords int) []string {
	if maxWords < 1 {
		maxWords = 1
	}
	norm := make([]string, 0, len(words))
	for _, w := range words {
		if n := lexicon.Normalize(w); n != "" {
			norm = append(norm, n)
		}
	}
	out := make([]string, 0, len(norm)*maxWords)
	for i := range norm {
		for n := 1; n <= maxWords && i+n <= len(norm); n++ {
			out = append(out, strings.Join(norm[i:i+n], " "))
		}
	}
	return out
}
