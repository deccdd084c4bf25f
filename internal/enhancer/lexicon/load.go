package lexicon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Data is the serialized form of a lexicon.
//
// Expected YAML layout:
//
//	synonyms:
//	  ac: [armor class]
//	patterns:
//	  - kind: dice
//	    pattern: '\d*d\d+(?:\s*[+-]\s*\d+)?'
//	vocabulary:
//	  spells: [fireball, magic missile]
//	misspellings:
//	  wizzard: wizard
//	affinity:
//	  spell slot: {spells: 2}
//	kind_affinity:
//	  dice: {spells: 1}
//	stop_words: [the, a, an]
//
// Patterns are matched in the order listed.
type Data struct {
	Synonyms     map[string][]string             `yaml:"synonyms"`
	Patterns     []PatternSpec                   `yaml:"patterns"`
	Vocabulary   map[Category][]string           `yaml:"vocabulary"`
	Misspellings map[string]string               `yaml:"misspellings"`
	Affinity     map[string]map[Category]float64 `yaml:"affinity"`
	KindAffinity map[string]map[Category]float64 `yaml:"kind_affinity"`
	StopWords    []string                        `yaml:"stop_words"`
}

// PatternSpec is one protected notation pattern in source form.
type PatternSpec struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
}

// Load reads a YAML lexicon file and validates it.
func Load(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon file %s: %w", path, err)
	}
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing lexicon file %s: %w", path, err)
	}
	lex, err := New(data)
	if err != nil {
		return nil, fmt.Errorf("building lexicon from %s: %w", path, err)
	}
	return lex, nil
}

// LoadOrDefault loads path when it is set and falls back to the built-in
// lexicon otherwise.
func LoadOrDefault(path string) (*Lexicon, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}
