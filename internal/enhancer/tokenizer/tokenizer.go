// Package tokenizer splits raw queries into tokens. Protected domain
// notation (dice expressions, challenge ratings, measures, level ordinals,
// ability-score codes, rulebook abbreviations) is emitted as a single special
// token; everything else splits on whitespace and punctuation.
package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
)

// Token is one fragment of the original query. Offset is the byte offset of
// Text within the query, so callers can splice replacements back in order.
type Token struct {
	Text    string       `json:"text"`
	Special bool         `json:"special"`
	Kind    lexicon.Kind `json:"kind,omitempty"`
	Offset  int          `json:"offset"`
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

// Tokenizer recognizes special notation with a fixed, prioritized pattern
// list. The zero value is a plain tokenizer with no special patterns.
type Tokenizer struct {
	patterns []lexicon.SpecialPattern
}

// New creates a Tokenizer over the given patterns, highest priority first.
func New(patterns []lexicon.SpecialPattern) *Tokenizer {
	return &Tokenizer{patterns: patterns}
}

// Plain returns a tokenizer that never emits special tokens.
func Plain() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize scans text once and returns its tokens in order. Empty input
// yields an empty, non-nil slice.
func (t *Tokenizer) Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/4+1)
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		if atWordStart(text, i) {
			if kind, n := t.matchSpecial(text[i:]); n > 0 {
				tokens = append(tokens, Token{
					Text:    text[i : i+n],
					Special: true,
					Kind:    kind,
					Offset:  i,
				})
				i += n
				continue
			}
		}
		end := scanWord(text, i)
		tokens = append(tokens, Token{Text: text[i:end], Offset: i})
		i = end
	}
	return tokens
}

// matchSpecial returns the longest pattern match anchored at the start of s.
// Equal-length matches go to the pattern listed first.
func (t *Tokenizer) matchSpecial(s string) (lexicon.Kind, int) {
	bestKind, bestLen := lexicon.KindNone, 0
	for _, p := range t.patterns {
		loc := p.Regexp.FindStringIndex(s)
		if loc == nil || loc[0] != 0 {
			continue
		}
		if loc[1] > bestLen {
			bestKind, bestLen = p.Kind, loc[1]
		}
	}
	return bestKind, bestLen
}

// scanWord consumes word runes from start. Apostrophes and hyphens are kept
// when both neighbours are word runes, so "half-elf" and "Player's" stay
// whole.
func scanWord(text string, start int) int {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r) {
			i += size
			continue
		}
		if isJoiner(r) && i > start && i+size < len(text) {
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if isWordRune(next) {
				i += size
				continue
			}
		}
		break
	}
	return i
}

func atWordStart(text string, i int) bool {
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(prev)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '-' || r == '’'
}

// Words returns the surface text of every token, in order.
func Words(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}
