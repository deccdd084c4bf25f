// Package enhancer sequences the query enhancement stages: tokenization with
// notation protection, synonym expansion, fuzzy correction and category
// prioritization. Enhance is the single entry point collaborators call. It
// never fails per query and holds no per-call state, so one Enhancer serves
// any number of concurrent callers.
package enhancer

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/category"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/synonyms"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/tokenizer"
)

// ErrNilLexicon is returned by New when no lexicon is supplied.
var ErrNilLexicon = errors.New("enhancer: lexicon is required")

// Config selects the active stages for one call.
type Config struct {
	Synonyms     bool `json:"synonyms"`
	SpecialTerms bool `json:"special_terms"`
	Fuzzy        bool `json:"fuzzy"`
	Categories   bool `json:"categories"`
}

// DefaultConfig enables every stage.
func DefaultConfig() Config {
	return Config{Synonyms: true, SpecialTerms: true, Fuzzy: true, Categories: true}
}

// SpecialTerm is a protected notation token preserved verbatim. Offset is a
// byte offset into the raw query passed to Enhance.
type SpecialTerm struct {
	Text   string       `json:"text"`
	Kind   lexicon.Kind `json:"kind"`
	Offset int          `json:"offset"`
}

// Report records every transformation applied to one query. The lists are
// never nil and the weight map always holds every category.
type Report struct {
	Synonyms        []synonyms.Expansion `json:"synonyms"`
	SpecialTerms    []SpecialTerm        `json:"special_terms"`
	Corrections     []fuzzy.Correction   `json:"corrections"`
	CategoryWeights category.WeightMap   `json:"category_weights"`
}

// Changed reports whether the enhanced query differs from the input.
func (r Report) Changed() bool {
	return len(r.Synonyms) > 0 || len(r.Corrections) > 0
}

// TopCategory returns the highest-weighted category.
func (r Report) TopCategory() lexicon.Category {
	c, _ := r.CategoryWeights.Top()
	return c
}

func emptyReport(floor float64) Report {
	return Report{
		Synonyms:        make([]synonyms.Expansion, 0),
		SpecialTerms:    make([]SpecialTerm, 0),
		Corrections:     make([]fuzzy.Correction, 0),
		CategoryWeights: category.Uniform(floor),
	}
}

// Option configures an Enhancer.
type Option func(*options)

type options struct {
	fuzzy  fuzzy.Config
	floor  float64
	logger *slog.Logger
}

// WithThreshold sets the similarity a correction must strictly exceed.
func WithThreshold(t float64) Option {
	return func(o *options) { o.fuzzy.Threshold = t }
}

// WithMinLength sets the shortest token considered for correction.
func WithMinLength(n int) Option {
	return func(o *options) { o.fuzzy.MinLength = n }
}

// WithFloor sets the weight given to categories with no affinity.
func WithFloor(f float64) Option {
	return func(o *options) { o.floor = f }
}

// WithLogger sets the logger used for per-stage debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Enhancer holds the immutable lexicon and the stage implementations built
// from it.
type Enhancer struct {
	lex         *lexicon.Lexicon
	tokenizer   *tokenizer.Tokenizer
	plain       *tokenizer.Tokenizer
	expander    *synonyms.Expander
	corrector   *fuzzy.Corrector
	prioritizer *category.Prioritizer
	logger      *slog.Logger
}

// New builds an Enhancer around lex.
func New(lex *lexicon.Lexicon, opts ...Option) (*Enhancer, error) {
	if lex == nil {
		return nil, ErrNilLexicon
	}
	o := options{
		fuzzy:  fuzzy.DefaultConfig(),
		floor:  category.DefaultFloor,
		logger: slog.Default().With("component", "enhancer"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Enhancer{
		lex:         lex,
		tokenizer:   tokenizer.New(lex.SpecialPatterns()),
		plain:       tokenizer.Plain(),
		expander:    synonyms.New(lex),
		corrector:   fuzzy.New(lex, o.fuzzy),
		prioritizer: category.New(lex, o.floor),
		logger:      o.logger,
	}, nil
}

// Lexicon returns the lexicon the Enhancer was built with.
func (e *Enhancer) Lexicon() *lexicon.Lexicon {
	return e.lex
}

// Enhance runs the active stages over raw and returns the enhanced query
// with its report. Corrections replace the misspelled token in place and
// canonical synonyms are appended after the original text. Empty or
// whitespace-only input yields "" and an empty report.
func (e *Enhancer) Enhance(raw string, cfg Config) (string, Report) {
	text := strings.TrimSpace(raw)
	report := emptyReport(e.prioritizer.Floor())
	if text == "" {
		return "", report
	}

	tok := e.plain
	if cfg.SpecialTerms {
		tok = e.tokenizer
	}
	tokens := tok.Tokenize(text)
	var kinds []lexicon.Kind
	for _, t := range tokens {
		if t.Special {
			report.SpecialTerms = append(report.SpecialTerms, SpecialTerm{Text: t.Text, Kind: t.Kind, Offset: t.Offset})
			kinds = append(kinds, t.Kind)
		}
	}
	e.logger.Debug("tokenized query", "tokens", len(tokens), "special_terms", len(report.SpecialTerms))

	if cfg.Synonyms {
		report.Synonyms = e.expander.Expand(tokens)
		e.logger.Debug("expanded synonyms", "count", len(report.Synonyms))
	}
	canonicals := synonyms.Canonicals(report.Synonyms)

	if cfg.Fuzzy {
		cands := e.corrector.Candidates(tokens)
		var weights category.WeightMap
		if cfg.Categories && hasAmbiguous(cands) {
			// Ties are settled against the weights of a first pass that
			// applies only the unambiguous corrections.
			pass1 := applyCorrections(tokens, unambiguous(cands))
			weights = e.prioritizer.Weights(e.terms(pass1, canonicals), kinds)
		}
		report.Corrections = fuzzy.Resolve(cands, weights)
		e.logger.Debug("applied corrections", "candidates", len(cands), "count", len(report.Corrections))
	}

	final := applyCorrections(tokens, report.Corrections)
	if cfg.Categories {
		report.CategoryWeights = e.prioritizer.Weights(e.terms(final, canonicals), kinds)
		top, w := report.CategoryWeights.Top()
		e.logger.Debug("prioritized categories", "top", top, "weight", w)
	}

	enhanced := render(text, report.Corrections, canonicals)
	// Report offsets index the caller's raw query, not the trimmed text.
	if lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace)); lead > 0 {
		for i := range report.SpecialTerms {
			report.SpecialTerms[i].Offset += lead
		}
		for i := range report.Corrections {
			report.Corrections[i].Offset += lead
		}
	}
	return enhanced, report
}

// terms builds the prioritizer input: phrases within each run of plain
// tokens, then the appended canonical phrases.
func (e *Enhancer) terms(tokens []tokenizer.Token, canonicals []string) []string {
	maxWords := e.lex.MaxPhraseWords()
	var out, run []string
	for _, t := range tokens {
		if t.Special {
			out = append(out, category.Terms(run, maxWords)...)
			run = run[:0]
			continue
		}
		run = append(run, t.Text)
	}
	out = append(out, category.Terms(run, maxWords)...)
	return append(out, canonicals...)
}

// applyCorrections returns a copy of tokens with corrected surface text.
func applyCorrections(tokens []tokenizer.Token, corrections []fuzzy.Correction) []tokenizer.Token {
	out := make([]tokenizer.Token, len(tokens))
	copy(out, tokens)
	if len(corrections) == 0 {
		return out
	}
	byOffset := make(map[int]string, len(corrections))
	for _, c := range corrections {
		byOffset[c.Offset] = c.Corrected
	}
	for i, t := range out {
		if w, ok := byOffset[t.Offset]; ok && !t.Special {
			out[i].Text = w
		}
	}
	return out
}

func hasAmbiguous(cands []fuzzy.Candidate) bool {
	for _, c := range cands {
		if c.Ambiguous() {
			return true
		}
	}
	return false
}

func unambiguous(cands []fuzzy.Candidate) []fuzzy.Correction {
	var single []fuzzy.Candidate
	for _, c := range cands {
		if !c.Ambiguous() {
			single = append(single, c)
		}
	}
	return fuzzy.Resolve(single, nil)
}

// render splices corrections into text at their offsets and appends the
// canonical terms.
func render(text string, corrections []fuzzy.Correction, canonicals []string) string {
	if len(corrections) > 0 {
		sorted := make([]fuzzy.Correction, len(corrections))
		copy(sorted, corrections)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset > sorted[j].Offset })
		for _, c := range sorted {
			end := c.Offset + len(c.Original)
			if c.Offset < 0 || end > len(text) || text[c.Offset:end] != c.Original {
				continue
			}
			text = text[:c.Offset] + fuzzy.MatchCase(c.Original, c.Corrected) + text[end:]
		}
	}
	if len(canonicals) == 0 {
		return text
	}
	return text + " " + strings.Join(canonicals, " ")
}
