// Package synonyms expands abbreviations and synonyms found in a token
// stream into their canonical terms. Expansion only appends: the original
// tokens are never rewritten.
package synonyms

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/tokenizer"
)

// Expansion records one observed form and the canonical term it expanded to.
type Expansion struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

// Expander looks tokens up in a lexicon.
type Expander struct {
	lex *lexicon.Lexicon
}

// New creates an Expander backed by lex.
func New(lex *lexicon.Lexicon) *Expander {
	return &Expander{lex: lex}
}

// Expand returns one Expansion per canonical term to append, in token order
// and then lexicon order. Special tokens are skipped. A canonical term that
// already occurs in the token stream, or was already produced by an earlier
// token, is not reported again, which makes expansion idempotent.
func (e *Expander) Expand(tokens []tokenizer.Token) []Expansion {
	out := make([]Expansion, 0)
	present := phrases(tokens, e.lex.MaxPhraseWords())
	added := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.Special {
			continue
		}
		norm := lexicon.Normalize(tok.Text)
		canonicals := e.lex.Synonyms(norm)
		if len(canonicals) == 0 {
			continue
		}
		for _, c := range canonicals {
			if c == norm {
				continue
			}
			if _, ok := present[c]; ok {
				continue
			}
			if _, ok := added[c]; ok {
				continue
			}
			added[c] = struct{}{}
			out = append(out, Expansion{Original: tok.Text, Canonical: c})
		}
	}
	return out
}

// Canonicals returns the canonical terms of exps in order.
func Canonicals(exps []Expansion) []string {
	out := make([]string, len(exps))
	for i, x := range exps {
		out[i] = x.Canonical
	}
	return out
}

// phrases collects every contiguous run of up to maxWords normalized token
// words. Special tokens break runs, but the words inside one form a run of
// their own: an appended "level" that a later pass folds into "3rd level"
// is still present.
func phrases(tokens []tokenizer.Token, maxWords int) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens)*maxWords)
	words := make([]string, 0, len(tokens))
	flush := func() {
		for i := range words {
			for n := 1; n <= maxWords && i+n <= len(words); n++ {
				set[strings.Join(words[i:i+n], " ")] = struct{}{}
			}
		}
		words = words[:0]
	}
	for _, tok := range tokens {
		if tok.Special {
			flush()
			words = append(words, strings.FieldsFunc(lexicon.Normalize(tok.Text), notWordRune)...)
			flush()
			continue
		}
		words = append(words, lexicon.Normalize(tok.Text))
	}
	flush()
	return set
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
