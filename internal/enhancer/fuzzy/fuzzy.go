// Package fuzzy proposes spelling corrections for query tokens that are not
// recognized domain terms. Candidates are scored against the lexicon
// vocabulary with a length-normalized Damerau-Levenshtein similarity.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/tokenizer"
)

const (
	DefaultThreshold = 0.75
	DefaultMinLength = 4

	scoreEpsilon = 1e-9
)

// Config tunes the corrector. Zero fields take the defaults.
type Config struct {
	// Threshold is the similarity a vocabulary word must strictly exceed.
	Threshold float64
	// MinLength is the shortest token, in runes, considered for correction.
	MinLength int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, MinLength: DefaultMinLength}
}

// Correction replaces a misspelled token with a vocabulary word.
type Correction struct {
	Original  string           `json:"original"`
	Corrected string           `json:"corrected"`
	Score     float64          `json:"score"`
	Distance  int              `json:"distance"`
	Category  lexicon.Category `json:"category,omitempty"`
	Offset    int              `json:"offset"`
}

// Option is one vocabulary word tied for the best score of a token.
type Option struct {
	Word       string
	Score      float64
	Distance   int
	Categories []lexicon.Category
}

// Candidate is a token with at least one acceptable correction. More than
// one Option means the best score is tied and needs category weights to
// resolve.
type Candidate struct {
	Index    int
	Original string
	Offset   int
	Options  []Option
}

// Ambiguous reports whether the candidate has tied options.
func (c Candidate) Ambiguous() bool {
	return len(c.Options) > 1
}

// Corrector is stateless after construction and safe for concurrent use.
type Corrector struct {
	lex       *lexicon.Lexicon
	vocab     []lexicon.VocabTerm
	threshold float64
	minLength int
}

// New creates a Corrector whose target space is the vocabulary of lex.
func New(lex *lexicon.Lexicon, cfg Config) *Corrector {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	// Synonym keys are left out of the target space: a correction into one
	// would only be expanded on a second pass.
	var vocab []lexicon.VocabTerm
	for _, v := range lex.Vocabulary() {
		if !lex.IsSynonymKey(v.Word) {
			vocab = append(vocab, v)
		}
	}
	return &Corrector{
		lex:       lex,
		vocab:     vocab,
		threshold: cfg.Threshold,
		minLength: cfg.MinLength,
	}
}

// Threshold returns the acceptance threshold in use.
func (c *Corrector) Threshold() float64 {
	return c.threshold
}

// Correct finds candidates and resolves ties with weights, which may be nil.
func (c *Corrector) Correct(tokens []tokenizer.Token, weights map[lexicon.Category]float64) []Correction {
	return Resolve(c.Candidates(tokens), weights)
}

// Candidates returns, in token order, every token with an acceptable
// correction.
func (c *Corrector) Candidates(tokens []tokenizer.Token) []Candidate {
	out := make([]Candidate, 0)
	for i, tok := range tokens {
		if !c.eligible(tok) {
			continue
		}
		word := lexicon.Normalize(tok.Text)
		if target, ok := c.lex.Misspelling(word); ok && !c.lex.IsSynonymKey(target) {
			out = append(out, Candidate{
				Index:    i,
				Original: tok.Text,
				Offset:   tok.Offset,
				Options: []Option{{
					Word:       target,
					Score:      Similarity(word, target),
					Distance:   Distance(word, target),
					Categories: c.lex.VocabularyCategories(target),
				}},
			})
			continue
		}
		if opts := c.best(word); len(opts) > 0 {
			out = append(out, Candidate{Index: i, Original: tok.Text, Offset: tok.Offset, Options: opts})
		}
	}
	return out
}

// eligible filters out tokens that must never be corrected: protected
// notation, recognized terms, function words, numbers and short tokens.
func (c *Corrector) eligible(tok tokenizer.Token) bool {
	if tok.Special {
		return false
	}
	if utf8.RuneCountInString(tok.Text) < c.minLength {
		return false
	}
	if strings.IndexFunc(tok.Text, unicode.IsDigit) >= 0 {
		return false
	}
	word := lexicon.Normalize(tok.Text)
	if c.lex.IsStopWord(word) || c.lex.IsSynonymKey(word) || c.lex.IsCanonical(word) {
		return false
	}
	return !c.known(word)
}

// known reports exact vocabulary matches, including simple plurals.
func (c *Corrector) known(word string) bool {
	if c.lex.InVocabulary(word) {
		return true
	}
	if s, ok := strings.CutSuffix(word, "es"); ok && c.lex.InVocabulary(s) {
		return true
	}
	if s, ok := strings.CutSuffix(word, "s"); ok && c.lex.InVocabulary(s) {
		return true
	}
	return false
}

// best scans the vocabulary and returns every word tied for the highest
// similarity above the threshold.
func (c *Corrector) best(word string) []Option {
	wl := utf8.RuneCountInString(word)
	bestScore := c.threshold
	var opts []Option
	for _, v := range c.vocab {
		vl := utf8.RuneCountInString(v.Word)
		longest := float64(max(wl, vl))
		// The length gap alone bounds the achievable similarity.
		if 1-math.Abs(float64(wl-vl))/longest < bestScore-scoreEpsilon {
			continue
		}
		d := Distance(word, v.Word)
		score := 1 - float64(d)/longest
		switch {
		case score > bestScore+scoreEpsilon:
			bestScore = score
			opts = opts[:0]
			opts = append(opts, Option{Word: v.Word, Score: score, Distance: d, Categories: v.Categories})
		case len(opts) > 0 && math.Abs(score-bestScore) <= scoreEpsilon:
			opts = append(opts, Option{Word: v.Word, Score: score, Distance: d, Categories: v.Categories})
		}
	}
	return opts
}

// Resolve turns candidates into corrections. Tied options are ordered by the
// highest weight among their categories, then by raw edit distance, then
// alphabetically, so the result is deterministic for a given weight map.
func Resolve(cands []Candidate, weights map[lexicon.Category]float64) []Correction {
	out := make([]Correction, 0, len(cands))
	for _, cand := range cands {
		opts := make([]Option, len(cand.Options))
		copy(opts, cand.Options)
		sort.SliceStable(opts, func(i, j int) bool {
			wi, wj := topWeight(opts[i].Categories, weights), topWeight(opts[j].Categories, weights)
			if wi != wj {
				return wi > wj
			}
			if opts[i].Distance != opts[j].Distance {
				return opts[i].Distance < opts[j].Distance
			}
			return opts[i].Word < opts[j].Word
		})
		pick := opts[0]
		out = append(out, Correction{
			Original:  cand.Original,
			Corrected: pick.Word,
			Score:     math.Round(pick.Score*10000) / 10000,
			Distance:  pick.Distance,
			Category:  topCategory(pick.Categories, weights),
			Offset:    cand.Offset,
		})
	}
	return out
}

func topWeight(cats []lexicon.Category, weights map[lexicon.Category]float64) float64 {
	best := 0.0
	for _, c := range cats {
		if w := weights[c]; w > best {
			best = w
		}
	}
	return best
}

func topCategory(cats []lexicon.Category, weights map[lexicon.Category]float64) lexicon.Category {
	if len(cats) == 0 {
		return ""
	}
	best, bestW := cats[0], weights[cats[0]]
	for _, c := range cats[1:] {
		if w := weights[c]; w > bestW {
			best, bestW = c, w
		}
	}
	return best
}

// MatchCase renders word in the letter case of original: all upper, leading
// capital, or lower.
func MatchCase(original, word string) string {
	if original == "" || word == "" {
		return word
	}
	if strings.ToUpper(original) == original && strings.ToLower(original) != original {
		return strings.ToUpper(word)
	}
	first, _ := utf8.DecodeRuneInString(original)
	if unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(word)
		return string(unicode.ToUpper(r)) + word[size:]
	}
	return word
}
