package tokenizer

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
)

func newTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	lex, err := lexicon.Default()
	require.NoError(t, err)
	return New(lex.SpecialPatterns())
}

func TestTokenizeSplitsWordsAndDropsPunctuation(t *testing.T) {
	tok := newTokenizer(t)
	tokens := tok.Tokenize("What is the AC of a dragon?")
	assert.Equal(t, []string{"What", "is", "the", "AC", "of", "a", "dragon"}, Words(tokens))
	for _, tk := range tokens {
		assert.False(t, tk.Special, tk.Text)
	}
}

func TestTokenizeSpecialNotation(t *testing.T) {
	tok := newTokenizer(t)
	tests := []struct {
		name  string
		input string
		text  string
		kind  lexicon.Kind
	}{
		{"dice with modifier", "How much damage does 2d6+3 do?", "2d6+3", lexicon.KindDice},
		{"dice upper case", "roll 1D20 now", "1D20", lexicon.KindDice},
		{"bare die", "a d8 weapon", "d8", lexicon.KindDice},
		{"challenge rating", "monsters of CR 1/2 or less", "CR 1/2", lexicon.KindChallengeRating},
		{"measure", "a 20-foot radius", "20-foot", lexicon.KindMeasure},
		{"measure with space", "costs 50 gp", "50 gp", lexicon.KindMeasure},
		{"level ordinal", "3rd-level slot", "3rd-level", lexicon.KindLevel},
		{"ability modifier", "needs STR+2", "STR+2", lexicon.KindAbilityScore},
		{"ability code", "a dex save", "dex", lexicon.KindAbilityScore},
		{"rulebook", "is it in the PHB?", "PHB", lexicon.KindRulebook},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := tok.Tokenize(tt.input)
			var found *Token
			for i := range tokens {
				if tokens[i].Special {
					found = &tokens[i]
					break
				}
			}
			require.NotNil(t, found, "no special token in %q", tt.input)
			assert.Equal(t, tt.text, found.Text)
			assert.Equal(t, tt.kind, found.Kind)
			assert.Equal(t, strings.Index(tt.input, tt.text), found.Offset)
		})
	}
}

func TestTokenizeSpecialRequiresWordBoundaries(t *testing.T) {
	tok := newTokenizer(t)

	for _, input := range []string{"dragon", "concentration", "strength", "chain mail", "phbx"} {
		for _, tk := range tok.Tokenize(input) {
			assert.False(t, tk.Special, "%q produced special token %q", input, tk.Text)
		}
	}
}

func TestTokenizeLongestMatchWins(t *testing.T) {
	tok := newTokenizer(t)

	// The level pattern consumes the whole ordinal phrase, not just "3rd".
	tokens := tok.Tokenize("3rd level")
	require.Len(t, tokens, 1)
	assert.Equal(t, "3rd level", tokens[0].Text)

	// Dice take priority and extend over the modifier.
	tokens = tok.Tokenize("2d6 + 3")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexicon.KindDice, tokens[0].Kind)
}

func TestTokenizeKeepsJoinedWords(t *testing.T) {
	tok := newTokenizer(t)
	tokens := tok.Tokenize("half-elf's darkvision -- rock'n")
	assert.Equal(t, []string{"half-elf's", "darkvision", "rock'n"}, Words(tokens))
}

func TestTokenizeEmptyAndPunctuation(t *testing.T) {
	tok := newTokenizer(t)

	tokens := tok.Tokenize("")
	require.NotNil(t, tokens)
	assert.Empty(t, tokens)

	assert.Empty(t, tok.Tokenize("?! ... --"))
}

func TestPlainTokenizerIgnoresNotation(t *testing.T) {
	tokens := Plain().Tokenize("2d6+3 damage")
	assert.Equal(t, []string{"2d6", "3", "damage"}, Words(tokens))
	for _, tk := range tokens {
		assert.False(t, tk.Special)
	}
}

// Every letter or digit of the input is covered by exactly one token, in
// order, and each token's text is the input at its offset.
func TestTokenizeCoversInput(t *testing.T) {
	tok := newTokenizer(t)
	inputs := []string{
		"What is the AC of a dragon?",
		"How much damage does 2d6+3 do?",
		"Tell me about firball",
		"CR5 monsters with 120 ft. darkvision, STR-1 & DEX+3 (PHB p.12)",
		"  Éldritch   blast!!  ",
		"3rd-level spell slot; 1d4-1 piercing",
	}
	for _, input := range inputs {
		tokens := tok.Tokenize(input)
		covered := make([]bool, len(input))
		last := -1
		for _, tk := range tokens {
			assert.Equal(t, tk.Text, input[tk.Offset:tk.End()])
			assert.Greater(t, tk.Offset, last, "tokens out of order in %q", input)
			last = tk.Offset
			for i := tk.Offset; i < tk.End(); i++ {
				covered[i] = true
			}
		}
		for i, r := range input {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				assert.True(t, covered[i], "rune %q at %d of %q not covered", r, i, input)
			}
		}
	}
}
