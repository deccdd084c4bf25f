// Package lexicon holds the static vocabulary the query enhancer runs on:
// synonym and abbreviation mappings, protected notation patterns, the
// correctly spelled domain vocabulary per category, a known-misspelling table
// and the per-category keyword affinities. A Lexicon is built once at startup
// and never mutated, so any number of goroutines may read it without locking.
package lexicon

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidLexicon is returned when lexicon data fails validation.
var ErrInvalidLexicon = errors.New("invalid lexicon")

// Category is a partition of the rules knowledge base.
type Category string

const (
	CategorySpells     Category = "spells"
	CategoryMonsters   Category = "monsters"
	CategoryEquipment  Category = "equipment"
	CategoryClasses    Category = "classes"
	CategoryRaces      Category = "races"
	CategoryMagicItems Category = "magic-items"
	CategoryFeatures   Category = "features"
)

var allCategories = []Category{
	CategorySpells,
	CategoryMonsters,
	CategoryEquipment,
	CategoryClasses,
	CategoryRaces,
	CategoryMagicItems,
	CategoryFeatures,
}

// AllCategories returns the fixed category set in its canonical order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

var categoryDescriptions = map[Category]string{
	CategorySpells:     "Magic spells with effects, components, and descriptions",
	CategoryMonsters:   "Creatures and foes",
	CategoryEquipment:  "Items, weapons, armor, and gear for adventuring",
	CategoryClasses:    "Character classes with features, proficiencies, and subclasses",
	CategoryRaces:      "Character races and their traits",
	CategoryMagicItems: "Magical equipment with special properties",
	CategoryFeatures:   "Class and racial features",
}

// Description is a one-line summary of c for category listings.
func (c Category) Description() string {
	if d, ok := categoryDescriptions[c]; ok {
		return d
	}
	return "Collection of D&D 5e " + string(c)
}

// ParseCategory validates a category name.
func ParseCategory(name string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range allCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// CategoryIndex returns the position of c in the canonical order, or
// len(AllCategories()) for unknown categories.
func CategoryIndex(c Category) int {
	for i, known := range allCategories {
		if known == c {
			return i
		}
	}
	return len(allCategories)
}

// Kind labels a protected notation pattern.
type Kind string

const (
	KindNone            Kind = ""
	KindDice            Kind = "dice"
	KindChallengeRating Kind = "challenge_rating"
	KindMeasure         Kind = "measure"
	KindLevel           Kind = "level"
	KindAbilityScore    Kind = "ability_score"
	KindRulebook        Kind = "rulebook"
)

// SpecialPattern recognizes one kind of protected notation. Regexp is
// anchored at the start of the input and prefers the longest match.
type SpecialPattern struct {
	Kind   Kind
	Regexp *regexp.Regexp
}

// VocabTerm is a correctly spelled domain word and the categories it
// belongs to.
type VocabTerm struct {
	Word       string
	Categories []Category
}

// Lexicon is the immutable, validated form of Data.
type Lexicon struct {
	synonyms       map[string][]string
	canonical      map[string]struct{}
	canonicalWords map[string]struct{}
	patterns       []SpecialPattern
	vocab          map[string][]Category
	vocabList      []VocabTerm
	misspellings   map[string]string
	affinity       map[string]map[Category]float64
	kindAffinity   map[Kind]map[Category]float64
	stopWords      map[string]struct{}
	maxPhrase      int
}

// New validates data and builds a Lexicon from it.
func New(data Data) (*Lexicon, error) {
	lex := &Lexicon{
		synonyms:       make(map[string][]string, len(data.Synonyms)),
		canonical:      make(map[string]struct{}),
		canonicalWords: make(map[string]struct{}),
		vocab:          make(map[string][]Category),
		misspellings:   make(map[string]string, len(data.Misspellings)),
		affinity:       make(map[string]map[Category]float64),
		kindAffinity:   make(map[Kind]map[Category]float64),
		stopWords:      make(map[string]struct{}, len(data.StopWords)),
		maxPhrase:      1,
	}
	if err := lex.loadSynonyms(data.Synonyms); err != nil {
		return nil, err
	}
	if err := lex.loadPatterns(data.Patterns); err != nil {
		return nil, err
	}
	if err := lex.loadVocabulary(data.Vocabulary); err != nil {
		return nil, err
	}
	if err := lex.loadMisspellings(data.Misspellings); err != nil {
		return nil, err
	}
	if err := lex.loadAffinity(data.Affinity, data.KindAffinity); err != nil {
		return nil, err
	}
	for _, w := range data.StopWords {
		if n := Normalize(w); n != "" {
			lex.stopWords[n] = struct{}{}
		}
	}
	return lex, nil
}

func (l *Lexicon) loadSynonyms(in map[string][]string) error {
	for key, canonicals := range in {
		k := Normalize(key)
		if k == "" {
			return fmt.Errorf("%w: empty synonym key", ErrInvalidLexicon)
		}
		if len(canonicals) == 0 {
			return fmt.Errorf("%w: synonym %q has no canonical terms", ErrInvalidLexicon, key)
		}
		seen := make(map[string]struct{}, len(canonicals))
		for _, c := range canonicals {
			n := Normalize(c)
			if n == "" {
				return fmt.Errorf("%w: synonym %q has an empty canonical term", ErrInvalidLexicon, key)
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			l.synonyms[k] = append(l.synonyms[k], n)
			l.canonical[n] = struct{}{}
			for _, w := range strings.Fields(n) {
				l.canonicalWords[w] = struct{}{}
			}
			l.trackPhrase(n)
		}
	}
	for c := range l.canonical {
		if _, ok := l.synonyms[c]; ok {
			return fmt.Errorf("%w: canonical term %q is also a synonym key", ErrInvalidLexicon, c)
		}
	}
	return nil
}

func (l *Lexicon) loadPatterns(in []PatternSpec) error {
	seen := make(map[Kind]struct{}, len(in))
	for _, p := range in {
		kind := Kind(strings.TrimSpace(p.Kind))
		if kind == KindNone {
			return fmt.Errorf("%w: pattern %q has no kind", ErrInvalidLexicon, p.Pattern)
		}
		if _, dup := seen[kind]; dup {
			return fmt.Errorf("%w: duplicate pattern kind %q", ErrInvalidLexicon, kind)
		}
		seen[kind] = struct{}{}
		re, err := regexp.Compile(`(?i)^(?:` + p.Pattern + `)\b`)
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidLexicon, kind, err)
		}
		re.Longest()
		l.patterns = append(l.patterns, SpecialPattern{Kind: kind, Regexp: re})
	}
	return nil
}

func (l *Lexicon) loadVocabulary(in map[Category][]string) error {
	for cat, words := range in {
		if _, ok := ParseCategory(string(cat)); !ok {
			return fmt.Errorf("%w: unknown vocabulary category %q", ErrInvalidLexicon, cat)
		}
		for _, term := range words {
			for _, w := range strings.Fields(Normalize(term)) {
				if !containsCategory(l.vocab[w], cat) {
					l.vocab[w] = append(l.vocab[w], cat)
				}
			}
		}
	}
	l.vocabList = make([]VocabTerm, 0, len(l.vocab))
	for w, cats := range l.vocab {
		sortCategories(cats)
		l.vocabList = append(l.vocabList, VocabTerm{Word: w, Categories: cats})
	}
	sort.Slice(l.vocabList, func(i, j int) bool {
		return l.vocabList[i].Word < l.vocabList[j].Word
	})
	return nil
}

func (l *Lexicon) loadMisspellings(in map[string]string) error {
	for wrong, right := range in {
		w, r := Normalize(wrong), Normalize(right)
		if w == "" || r == "" {
			return fmt.Errorf("%w: empty misspelling entry %q -> %q", ErrInvalidLexicon, wrong, right)
		}
		if _, ok := l.vocab[r]; !ok {
			return fmt.Errorf("%w: misspelling target %q is not in the vocabulary", ErrInvalidLexicon, right)
		}
		l.misspellings[w] = r
	}
	return nil
}

func (l *Lexicon) loadAffinity(terms map[string]map[Category]float64, kinds map[string]map[Category]float64) error {
	// Every vocabulary word carries a unit affinity toward its own categories.
	for w, cats := range l.vocab {
		for _, c := range cats {
			l.addAffinity(w, c, vocabularyAffinity)
		}
	}
	for term, weights := range terms {
		n := Normalize(term)
		if n == "" {
			return fmt.Errorf("%w: empty affinity term", ErrInvalidLexicon)
		}
		for cat, w := range weights {
			if err := checkWeight(term, cat, w); err != nil {
				return err
			}
			l.addAffinity(n, cat, w)
		}
		l.trackPhrase(n)
	}
	for kind, weights := range kinds {
		k := Kind(kind)
		l.kindAffinity[k] = make(map[Category]float64, len(weights))
		for cat, w := range weights {
			if err := checkWeight(kind, cat, w); err != nil {
				return err
			}
			l.kindAffinity[k][cat] = w
		}
	}
	return nil
}

const (
	vocabularyAffinity = 1.0
	maxAffinityWeight  = 10.0
)

func checkWeight(term string, cat Category, w float64) error {
	if _, ok := ParseCategory(string(cat)); !ok {
		return fmt.Errorf("%w: affinity %q references unknown category %q", ErrInvalidLexicon, term, cat)
	}
	if w <= 0 || w > maxAffinityWeight {
		return fmt.Errorf("%w: affinity %q/%s weight %v outside (0, %v]", ErrInvalidLexicon, term, cat, w, maxAffinityWeight)
	}
	return nil
}

func (l *Lexicon) addAffinity(term string, cat Category, w float64) {
	m, ok := l.affinity[term]
	if !ok {
		m = make(map[Category]float64)
		l.affinity[term] = m
	}
	m[cat] += w
}

func (l *Lexicon) trackPhrase(phrase string) {
	if n := len(strings.Fields(phrase)); n > l.maxPhrase {
		l.maxPhrase = n
	}
}

// Synonyms returns the canonical terms for an observed form, in lexicon
// order. The result is nil when term is not a synonym key.
func (l *Lexicon) Synonyms(term string) []string {
	c, ok := l.synonyms[Normalize(term)]
	if !ok {
		return nil
	}
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// IsSynonymKey reports whether term has synonym expansions.
func (l *Lexicon) IsSynonymKey(term string) bool {
	_, ok := l.synonyms[Normalize(term)]
	return ok
}

// IsCanonical reports whether term is a canonical phrase or one word of a
// canonical phrase.
func (l *Lexicon) IsCanonical(term string) bool {
	n := Normalize(term)
	if _, ok := l.canonical[n]; ok {
		return true
	}
	_, ok := l.canonicalWords[n]
	return ok
}

// SpecialPatterns returns the notation patterns in priority order.
func (l *Lexicon) SpecialPatterns() []SpecialPattern {
	out := make([]SpecialPattern, len(l.patterns))
	copy(out, l.patterns)
	return out
}

// Vocabulary returns every vocabulary word sorted alphabetically.
func (l *Lexicon) Vocabulary() []VocabTerm {
	out := make([]VocabTerm, len(l.vocabList))
	for i, v := range l.vocabList {
		out[i] = VocabTerm{Word: v.Word, Categories: append([]Category(nil), v.Categories...)}
	}
	return out
}

// InVocabulary reports whether word is a correctly spelled domain word.
func (l *Lexicon) InVocabulary(word string) bool {
	_, ok := l.vocab[Normalize(word)]
	return ok
}

// VocabularyCategories returns the categories a vocabulary word belongs to.
func (l *Lexicon) VocabularyCategories(word string) []Category {
	return append([]Category(nil), l.vocab[Normalize(word)]...)
}

// Misspelling returns the known correction for word, if any.
func (l *Lexicon) Misspelling(word string) (string, bool) {
	r, ok := l.misspellings[Normalize(word)]
	return r, ok
}

// IsStopWord reports whether word is a common function word that is never
// a correction candidate.
func (l *Lexicon) IsStopWord(word string) bool {
	_, ok := l.stopWords[Normalize(word)]
	return ok
}

// Affinity returns the per-category affinity of a term or phrase.
func (l *Lexicon) Affinity(term string) map[Category]float64 {
	return copyWeights(l.affinity[Normalize(term)])
}

// KindAffinity returns the per-category affinity of a notation kind.
func (l *Lexicon) KindAffinity(kind Kind) map[Category]float64 {
	return copyWeights(l.kindAffinity[kind])
}

// MaxPhraseWords is the longest phrase, in words, among canonical terms and
// affinity keys.
func (l *Lexicon) MaxPhraseWords() int {
	return l.maxPhrase
}

// Stats summarizes the lexicon size for logging and health reporting.
func (l *Lexicon) Stats() map[string]int {
	return map[string]int{
		"synonyms":     len(l.synonyms),
		"patterns":     len(l.patterns),
		"vocabulary":   len(l.vocab),
		"misspellings": len(l.misspellings),
		"affinities":   len(l.affinity),
	}
}

func copyWeights(in map[Category]float64) map[Category]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[Category]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func containsCategory(cats []Category, c Category) bool {
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}

func sortCategories(cats []Category) {
	sort.Slice(cats, func(i, j int) bool {
		return CategoryIndex(cats[i]) < CategoryIndex(cats[j])
	})
}
