// Package ranker scores rules API references against query terms with BM25
// over entry names, scaled by the weight of the entry's category.
package ranker

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/dndapi"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredRef is a reference with its relevance to the query.
type ScoredRef struct {
	Category lexicon.Category `json:"category"`
	Index    string           `json:"index"`
	Name     string           `json:"name"`
	URL      string           `json:"url"`
	Score    float64          `json:"score"`
	Matched  []string         `json:"matched_terms"`
}

// Less orders by score descending, then category order, then index, so
// rankings are deterministic across categories.
func Less(a, b ScoredRef) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ia, ib := lexicon.CategoryIndex(a.Category), lexicon.CategoryIndex(b.Category); ia != ib {
		return ia < ib
	}
	return a.Index < b.Index
}

// Rank scores refs of one category against terms. Only references matching
// at least one term are returned, best first, truncated to limit when
// limit > 0.
func Rank(category lexicon.Category, refs []dndapi.Reference, terms []string, weight float64, limit int) []ScoredRef {
	if len(refs) == 0 || len(terms) == 0 {
		return []ScoredRef{}
	}

	docs := make([][]string, len(refs))
	var totalLen int
	for i, r := range refs {
		docs[i] = Tokens(r.Name)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(refs))

	uniq := dedupe(terms)
	docFreq := make(map[string]int, len(uniq))
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, tok := range doc {
			seen[tok] = true
		}
		for _, t := range uniq {
			if seen[t] {
				docFreq[t]++
			}
		}
	}

	out := make([]ScoredRef, 0)
	for i, doc := range docs {
		var score float64
		var matched []string
		for _, t := range uniq {
			tf := 0
			for _, tok := range doc {
				if tok == t {
					tf++
				}
			}
			if tf == 0 {
				continue
			}
			matched = append(matched, t)
			idf := computeIDF(int64(len(docs)), int64(docFreq[t]))
			score += idf * computeTFNorm(float64(tf), float64(len(doc)), avgLen)
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, ScoredRef{
			Category: category,
			Index:    refs[i].Index,
			Name:     refs[i].Name,
			URL:      refs[i].URL,
			Score:    math.Round(score*weight*10000) / 10000,
			Matched:  matched,
		})
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Tokens lowercases s and splits it on anything that is not a letter or
// digit, dropping apostrophes so "Bigby's" yields "bigbys".
func Tokens(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
