package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/tokenizer"
)

func defaultLexicon(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.Default()
	require.NoError(t, err)
	return lex
}

func tokenize(lex *lexicon.Lexicon, text string) []tokenizer.Token {
	return tokenizer.New(lex.SpecialPatterns()).Tokenize(text)
}

// tieLexicon has two vocabulary words in different categories that are one
// edit away from "glummer".
func tieLexicon(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.New(lexicon.Data{
		Vocabulary: map[lexicon.Category][]string{
			lexicon.CategorySpells:   {"glimmer", "spell"},
			lexicon.CategoryMonsters: {"glammer", "monster"},
		},
	})
	require.NoError(t, err)
	return lex
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"fireball", "fireball", 0},
		{"firball", "fireball", 1},
		{"kitten", "sitting", 3},
		{"ca", "ac", 1},
		{"fierball", "fireball", 1},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "Distance(%q, %q)", tt.a, tt.b)
		assert.Equal(t, tt.want, Distance(tt.b, tt.a), "Distance(%q, %q)", tt.b, tt.a)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("dragon", "dragon"))
	assert.InDelta(t, 0.875, Similarity("firball", "fireball"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}

func TestCorrectMisspelledVocabularyWord(t *testing.T) {
	lex := defaultLexicon(t)
	c := New(lex, DefaultConfig())

	got := c.Correct(tokenize(lex, "Tell me about firball"), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "firball", got[0].Original)
	assert.Equal(t, "fireball", got[0].Corrected)
	assert.Equal(t, 0.875, got[0].Score)
	assert.Greater(t, got[0].Score, c.Threshold())
	assert.Equal(t, 1, got[0].Distance)
	assert.Equal(t, lexicon.CategorySpells, got[0].Category)
	assert.Equal(t, 14, got[0].Offset)
}

func TestCorrectUsesMisspellingTable(t *testing.T) {
	lex := defaultLexicon(t)
	c := New(lex, DefaultConfig())

	got := c.Correct(tokenize(lex, "Rouge or wizzard"), nil)
	require.Len(t, got, 2)
	assert.Equal(t, "rogue", got[0].Corrected)
	assert.Equal(t, "Rouge", got[0].Original)
	assert.Equal(t, lexicon.CategoryClasses, got[0].Category)
	assert.Equal(t, "wizard", got[1].Corrected)
}

func TestCorrectSkipsIneligibleTokens(t *testing.T) {
	lex := defaultLexicon(t)
	c := New(lex, DefaultConfig())

	tests := []struct {
		name  string
		input string
	}{
		{"exact vocabulary word", "fireball"},
		{"plural of vocabulary word", "dragons"},
		{"es plural", "torches"},
		{"too short", "fyr"},
		{"stop word", "where"},
		{"contains digits", "f1reball"},
		{"synonym key", "pally"},
		{"canonical word", "points"},
		{"protected notation", "2d6+3"},
		{"no close word", "xylophone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, c.Correct(tokenize(lex, tt.input), nil))
		})
	}
}

func TestCorrectRespectsConfig(t *testing.T) {
	lex := defaultLexicon(t)
	tokens := tokenize(lex, "firball")

	strict := New(lex, Config{Threshold: 0.9})
	assert.Empty(t, strict.Correct(tokens, nil), "0.875 does not exceed 0.9")

	long := New(lex, Config{MinLength: 8})
	assert.Empty(t, long.Correct(tokens, nil), "firball is shorter than 8 runes")

	defaults := New(lex, Config{})
	assert.Equal(t, DefaultThreshold, defaults.Threshold())
	assert.Len(t, defaults.Correct(tokens, nil), 1)
}

func TestThresholdMustBeStrictlyExceeded(t *testing.T) {
	lex := defaultLexicon(t)
	c := New(lex, DefaultConfig())

	// "ogra" is one edit from "ogre": 1 - 1/4 = 0.75, exactly the threshold.
	assert.Empty(t, c.Correct(tokenize(lex, "ogra"), nil))
}

func TestCandidatesReportTies(t *testing.T) {
	lex := tieLexicon(t)
	c := New(lex, DefaultConfig())

	cands := c.Candidates(tokenize(lex, "glummer"))
	require.Len(t, cands, 1)
	assert.True(t, cands[0].Ambiguous())
	words := []string{cands[0].Options[0].Word, cands[0].Options[1].Word}
	assert.ElementsMatch(t, []string{"glimmer", "glammer"}, words)
}

func TestResolveTieByCategoryWeight(t *testing.T) {
	lex := tieLexicon(t)
	c := New(lex, DefaultConfig())
	tokens := tokenize(lex, "glummer")

	spells := map[lexicon.Category]float64{lexicon.CategorySpells: 1, lexicon.CategoryMonsters: 0.1}
	got := c.Correct(tokens, spells)
	require.Len(t, got, 1)
	assert.Equal(t, "glimmer", got[0].Corrected)
	assert.Equal(t, lexicon.CategorySpells, got[0].Category)

	monsters := map[lexicon.Category]float64{lexicon.CategorySpells: 0.1, lexicon.CategoryMonsters: 1}
	got = c.Correct(tokens, monsters)
	require.Len(t, got, 1)
	assert.Equal(t, "glammer", got[0].Corrected)

	// Without weights, equal distances fall back to lexical order.
	got = c.Correct(tokens, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "glammer", got[0].Corrected)
}

func TestResolveTieByDistance(t *testing.T) {
	cands := []Candidate{{
		Original: "abcdefgh",
		Options: []Option{
			{Word: "zzlong", Score: 0.875, Distance: 2, Categories: []lexicon.Category{lexicon.CategorySpells}},
			{Word: "yyshort", Score: 0.875, Distance: 1, Categories: []lexicon.Category{lexicon.CategoryMonsters}},
		},
	}}
	got := Resolve(cands, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "yyshort", got[0].Corrected)

	// The input order of options is left untouched.
	assert.Equal(t, "zzlong", cands[0].Options[0].Word)
}

func TestResolveEmpty(t *testing.T) {
	got := Resolve(nil, nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatchCase(t *testing.T) {
	tests := []struct {
		original, word, want string
	}{
		{"firball", "fireball", "fireball"},
		{"Firball", "fireball", "Fireball"},
		{"FIRBALL", "fireball", "FIREBALL"},
		{"fIRBALL", "fireball", "fireball"},
		{"", "fireball", "fireball"},
		{"Élfe", "elf", "Elf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchCase(tt.original, tt.word), "MatchCase(%q, %q)", tt.original, tt.word)
	}
}

func TestCorrectorIsSafeForConcurrentUse(t *testing.T) {
	lex := defaultLexicon(t)
	c := New(lex, DefaultConfig())
	tokens := tokenize(lex, "firball and lightnin bolt against a beholdr")
	want := c.Correct(tokens, nil)

	done := make(chan []Correction)
	for i := 0; i < 16; i++ {
		go func() { done <- c.Correct(tokens, nil) }()
	}
	for i := 0; i < 16; i++ {
		assert.Equal(t, want, <-done)
	}
}
