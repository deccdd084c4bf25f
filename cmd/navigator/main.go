package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/dndapi"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/enhancer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting navigator", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lex, err := lexicon.LoadOrDefault(cfg.Enhancer.LexiconPath)
	if err != nil {
		slog.Error("failed to load lexicon", "path", cfg.Enhancer.LexiconPath, "error", err)
		os.Exit(1)
	}
	enh, err := enhancer.New(lex,
		enhancer.WithThreshold(cfg.Enhancer.FuzzyThreshold),
		enhancer.WithMinLength(cfg.Enhancer.MinWordLength),
		enhancer.WithFloor(cfg.Enhancer.CategoryFloor),
	)
	if err != nil {
		slog.Error("failed to build enhancer", "error", err)
		os.Exit(1)
	}
	slog.Info("lexicon loaded", "path", cfg.Enhancer.LexiconPath, "vocabulary", len(lex.Vocabulary()))

	m := metrics.New()

	var (
		responseCache *cache.Cache
		redisClient   *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, falling back to in-memory cache", "error", err)
		} else {
			defer redisClient.Close()
			responseCache = cache.New(cache.NewRedisStore(redisClient), "redis", cfg.Redis.CacheTTL, m)
			slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if responseCache == nil {
		responseCache = cache.New(cache.NewMemoryStore(), "memory", cfg.Redis.CacheTTL, m)
	}

	// Analytics events go to Kafka when it is enabled; otherwise they are
	// aggregated in-process and served from this instance.
	aggregator := analytics.NewAggregator()
	var sink analytics.Sink = aggregator
	instance := instanceID()
	invalidator := cache.NewBroadcaster(responseCache, nil, instance)
	var invalidations *kafka.Consumer
	if cfg.Kafka.Enabled {
		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, kafka.WithMetrics(m))
		defer events.Close()
		sink = analytics.KafkaSink{Producer: events}

		publisher := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, kafka.WithMetrics(m))
		defer publisher.Close()
		invalidator = cache.NewBroadcaster(responseCache, publisher, instance)

		// Every instance must see every invalidation, so each gets its own group.
		invalidations = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, invalidator.HandleMessage,
			kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-cache-"+instance),
			kafka.WithConsumerMetrics(m),
		)
		defer invalidations.Close()
		go func() {
			if err := invalidations.Start(ctx); err != nil {
				slog.Error("cache invalidation consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers)
	}
	collector := analytics.NewCollector(sink, analytics.CollectorConfig{BufferSize: cfg.Analytics.BufferSize}, m)
	collector.Start(ctx)
	defer collector.Close()

	api := dndapi.New(cfg.DNDAPI, dndapi.WithMetrics(m))
	exec := executor.New(api, responseCache, cfg.Search, m)
	if cats := prefetchCategories(cfg.Search.PrefetchCategories); len(cats) > 0 {
		go func() {
			warmed, err := exec.Prefetch(ctx, cats)
			if err != nil {
				slog.Warn("cache warm-up incomplete", "warmed", warmed, "requested", len(cats), "error", err)
				return
			}
			slog.Info("cache warmed", "categories", warmed)
		}()
	}

	enhance := enhancer.Chain(enh.Func(),
		enhancer.WithLogging(slog.Default().With("component", "enhancer")),
		enhancer.WithMetrics(m),
		enhancer.WithTracing(),
		enhancer.WithAnalytics(collector),
	)

	checker := health.NewChecker(
		health.WithCacheTTL(time.Second),
		health.WithObserver(func(name string, h health.ComponentHealth) {
			m.ComponentHealth.WithLabelValues(name).Set(h.Status.Score())
		}),
	)
	checker.Register("lexicon", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d vocabulary terms", len(lex.Vocabulary()))}
	})
	checker.Register("cache", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "in-memory cache"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("dndapi", func(ctx context.Context) health.ComponentHealth {
		switch api.Breaker().State() {
		case resilience.StateOpen:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit open"}
		case resilience.StateHalfOpen:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit half-open"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if invalidations != nil {
		checker.Register("invalidations", health.Ping(invalidations.Ping, health.StatusDegraded))
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m,
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
		)
		defer shutdownMetrics(context.Background())
	}

	h := handler.New(handler.Options{
		Enhance:        enhance,
		Lexicon:        lex,
		Executor:       exec,
		Cache:          responseCache,
		Invalidator:    invalidator,
		Tracker:        collector,
		Upstream:       api,
		MaxQueryLength: cfg.Enhancer.MaxQueryLength,
	})

	mux := http.NewServeMux()
	h.Register(mux, middleware.AdminKey(cfg.Server.AdminKeys))
	if len(cfg.Server.AdminKeys) == 0 {
		slog.Warn("no admin keys configured, cache invalidation is unauthenticated")
	}
	if !cfg.Kafka.Enabled {
		analytics.NewHandler(aggregator, nil).Register(mux)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)),
		middleware.Metrics(m),
	}
	if cfg.Tracing.Enabled {
		mws = append(mws, middleware.Tracing(cfg.Tracing.SampleRate))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer limiter.Stop()
		mws = append(mws, middleware.RateLimit(limiter, m))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("navigator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("navigator stopped")
}

// instanceID names this process for invalidation origins and its private
// consumer group. The random suffix keeps instances sharing a host apart.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "navigator"
	}
	return host + "-" + uuid.NewString()[:8]
}

// prefetchCategories keeps the configured warm-up categories that exist,
// dropping duplicates.
func prefetchCategories(names []string) []lexicon.Category {
	var out []lexicon.Category
	for _, name := range names {
		cat, ok := lexicon.ParseCategory(name)
		if !ok {
			slog.Warn("ignoring unknown prefetch category", "category", name)
			continue
		}
		if !slices.Contains(out, cat) {
			out = append(out, cat)
		}
	}
	return out
}
