package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.75, cfg.Enhancer.FuzzyThreshold)
	assert.Equal(t, 4, cfg.Enhancer.MinWordLength)
	assert.Equal(t, 0.1, cfg.Enhancer.CategoryFloor)
	assert.Equal(t, "https://www.dnd5eapi.co/api", cfg.DNDAPI.BaseURL)
	assert.Equal(t, "navigator.analytics", cfg.Kafka.Topics.AnalyticsEvents)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"spells", "equipment", "monsters", "classes", "races"}, cfg.Search.PrefetchCategories)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
enhancer:
  fuzzyThreshold: 0.8
  lexiconPath: /etc/navigator/lexicon.yaml
redis:
  enabled: true
  cacheTTL: 1h
search:
  prefetchCategories: [spells]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Enhancer.FuzzyThreshold)
	assert.Equal(t, "/etc/navigator/lexicon.yaml", cfg.Enhancer.LexiconPath)
	assert.Equal(t, 4, cfg.Enhancer.MinWordLength, "unset fields keep defaults")
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"spells"}, cfg.Search.PrefetchCategories)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DKN_SERVER_PORT", "7070")
	t.Setenv("DKN_FUZZY_THRESHOLD", "0.85")
	t.Setenv("DKN_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DKN_REDIS_ENABLED", "true")
	t.Setenv("DKN_DNDAPI_TIMEOUT", "3s")
	t.Setenv("DKN_MIN_WORD_LENGTH", "not-a-number")
	t.Setenv("DKN_ADMIN_KEYS", "alpha,beta")
	t.Setenv("DKN_CORS_ORIGINS", "https://navigator.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 0.85, cfg.Enhancer.FuzzyThreshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 3*time.Second, cfg.DNDAPI.Timeout)
	assert.Equal(t, 4, cfg.Enhancer.MinWordLength)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.AdminKeys)
	assert.Equal(t, []string{"https://navigator.example"}, cfg.Server.CORSOrigins)
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Enhancer.LexiconPath)
	assert.Equal(t, "navigator.cache-invalidate", cfg.Kafka.Topics.CacheInvalidate)
	assert.Equal(t, 5*time.Minute, cfg.Postgres.ConnMaxLifetime)
	assert.Contains(t, cfg.Server.CORSOrigins, "http://localhost:3000")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"threshold":  "enhancer:\n  fuzzyThreshold: 1.5\n",
		"floor":      "enhancer:\n  categoryFloor: 0\n",
		"port":       "server:\n  port: 70000\n",
		"base url":   "dndapi:\n  baseUrl: \"\"\n",
		"limit":      "search:\n  defaultLimit: 100\n  maxResults: 10\n",
		"min length": "enhancer:\n  minWordLength: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
