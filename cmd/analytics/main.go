// Command analytics starts the standalone analytics aggregation service.
//
// It consumes enhancement and search events from Kafka, aggregates them in
// memory, optionally snapshots the aggregate to PostgreSQL, and serves
// GET /api/v1/analytics and GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	m := metrics.New()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleMessage, kafka.WithConsumerMetrics(m))
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker(
		health.WithCacheTTL(time.Second),
		health.WithObserver(func(name string, h health.ComponentHealth) {
			m.ComponentHealth.WithLabelValues(name).Set(h.Status.Score())
		}),
	)
	checker.Register("kafka", health.Ping(consumer.Ping, health.StatusDown))

	var history analytics.History
	if cfg.Analytics.PersistSnapshots {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create snapshot schema", "error", err)
			os.Exit(1)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval, cfg.Analytics.SnapshotRetention)
		history = store
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m,
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
		)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg, history).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID(),
			middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)),
			middleware.Metrics(m),
		),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
