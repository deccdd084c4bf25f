// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Enhancer, DNDAPI, Search, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Enhancer  EnhancerConfig  `yaml:"enhancer"`
	DNDAPI    DNDAPIConfig    `yaml:"dndapi"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AdminKeys guard cache invalidation. Empty leaves it open.
	AdminKeys       []string      `yaml:"adminKeys"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// EnhancerConfig tunes the query enhancement pipeline.
type EnhancerConfig struct {
	LexiconPath    string  `yaml:"lexiconPath"`
	FuzzyThreshold float64 `yaml:"fuzzyThreshold"`
	MinWordLength  int     `yaml:"minWordLength"`
	CategoryFloor  float64 `yaml:"categoryFloor"`
	MaxQueryLength int     `yaml:"maxQueryLength"`
}

// DNDAPIConfig points at the rules API and controls its fault tolerance.
type DNDAPIConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	Timeout          time.Duration `yaml:"timeout"`
	RetryAttempts    int           `yaml:"retryAttempts"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// SearchConfig controls category fan-out limits and timeouts.
type SearchConfig struct {
	MaxResults           int           `yaml:"maxResults"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	CategoryCutoff       float64       `yaml:"categoryCutoff"`
	TimeoutPerCategory   time.Duration `yaml:"timeoutPerCategory"`
	MaxConcurrentQueries int           `yaml:"maxConcurrentQueries"`
	// PrefetchCategories are listed into the cache at startup. Empty
	// disables the warm-up.
	PrefetchCategories []string `yaml:"prefetchCategories"`
}

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig controls event buffering and snapshot persistence.
type AnalyticsConfig struct {
	Port             int           `yaml:"port"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	PersistSnapshots bool          `yaml:"persistSnapshots"`

	// SnapshotRetention bounds how long persisted snapshots are kept.
	SnapshotRetention time.Duration `yaml:"snapshotRetention"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls in-process span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if t := c.Enhancer.FuzzyThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("enhancer.fuzzyThreshold %v must be in (0, 1)", t)
	}
	if f := c.Enhancer.CategoryFloor; f <= 0 || f >= 1 {
		return fmt.Errorf("enhancer.categoryFloor %v must be in (0, 1)", f)
	}
	if c.Enhancer.MinWordLength < 1 {
		return fmt.Errorf("enhancer.minWordLength must be positive")
	}
	if c.DNDAPI.BaseURL == "" {
		return fmt.Errorf("dndapi.baseUrl is required")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit %d exceeds search.maxResults %d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Enhancer: EnhancerConfig{
			FuzzyThreshold: 0.75,
			MinWordLength:  4,
			CategoryFloor:  0.1,
			MaxQueryLength: 512,
		},
		DNDAPI: DNDAPIConfig{
			BaseURL:          "https://www.dnd5eapi.co/api",
			Timeout:          10 * time.Second,
			RetryAttempts:    3,
			RetryDelay:       200 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:           50,
			DefaultLimit:         10,
			CategoryCutoff:       0.3,
			TimeoutPerCategory:   5 * time.Second,
			MaxConcurrentQueries: 4,
			PrefetchCategories:   []string{"spells", "equipment", "monsters", "classes", "races"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 60,
			Window:   time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "navigator",
			User:            "navigator",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "navigator-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "navigator.analytics",
				CacheInvalidate: "navigator.cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			Port:              8083,
			BufferSize:        10000,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DKN_* environment variables and overwrites the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("DKN_SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv("DKN_ADMIN_KEYS"); v != "" {
		cfg.Server.AdminKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("DKN_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	setString("DKN_LEXICON_PATH", &cfg.Enhancer.LexiconPath)
	setFloat("DKN_FUZZY_THRESHOLD", &cfg.Enhancer.FuzzyThreshold)
	setInt("DKN_MIN_WORD_LENGTH", &cfg.Enhancer.MinWordLength)
	setFloat("DKN_CATEGORY_FLOOR", &cfg.Enhancer.CategoryFloor)
	setString("DKN_DNDAPI_BASE_URL", &cfg.DNDAPI.BaseURL)
	setDuration("DKN_DNDAPI_TIMEOUT", &cfg.DNDAPI.Timeout)
	setBool("DKN_RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	setInt("DKN_RATELIMIT_REQUESTS", &cfg.RateLimit.Requests)
	setString("DKN_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("DKN_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("DKN_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("DKN_POSTGRES_USER", &cfg.Postgres.User)
	setString("DKN_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("DKN_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("DKN_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("DKN_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("DKN_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("DKN_REDIS_ADDR", &cfg.Redis.Addr)
	setString("DKN_REDIS_PASSWORD", &cfg.Redis.Password)
	setDuration("DKN_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	setString("DKN_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("DKN_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("DKN_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
