package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
)

func TestInstanceIDIsUniquePerProcessStart(t *testing.T) {
	a, b := instanceID(), instanceID()
	assert.NotEqual(t, a, b, "two navigators on one host need distinct ids")

	if host, err := os.Hostname(); err == nil && host != "" {
		assert.True(t, strings.HasPrefix(a, host+"-"), a)
	}
}

func TestPrefetchCategoriesDropsUnknownAndDuplicates(t *testing.T) {
	got := prefetchCategories([]string{"Spells", "vehicles", "monsters", "spells", " races "})
	assert.Equal(t, []lexicon.Category{lexicon.CategorySpells, lexicon.CategoryMonsters, lexicon.CategoryRaces}, got)
	assert.Empty(t, prefetchCategories(nil))
}
