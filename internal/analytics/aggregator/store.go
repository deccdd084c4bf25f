// Package aggregator persists periodic snapshots of analytics stats to
// PostgreSQL.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/resilience"
)

var migrations = []postgres.Migration{
	{
		Version: 1,
		Name:    "create navigator_analytics_snapshots",
		SQL: `CREATE TABLE IF NOT EXISTS navigator_analytics_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	},
	{
		Version: 2,
		Name:    "index snapshots by capture time",
		SQL: `CREATE INDEX IF NOT EXISTS navigator_analytics_snapshots_captured_at
	ON navigator_analytics_snapshots (captured_at DESC)`,
	},
}

// Store persists aggregated analytics snapshots in PostgreSQL.
type Store struct {
	db     *postgres.Client
	now    func() time.Time
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// StatsSource is what StartPeriodicSave snapshots; *analytics.Aggregator
// satisfies it.
type StatsSource interface {
	Stats() analytics.Stats
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema applies any pending snapshot migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, migrations...)
}

// SaveSnapshot persists a stats snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	capturedAt := s.now()
	err = resilience.Retry(ctx, "save snapshot", s.retry, func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO navigator_analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, capturedAt,
		)
		if err != nil && !postgres.IsTransient(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_enhancements", stats.TotalEnhancements,
		"total_searches", stats.TotalSearches,
	)
	return nil
}

// Prune deletes snapshots captured before now minus retention and returns
// how many were removed. A non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM navigator_analytics_snapshots WHERE captured_at < $1`,
		s.now().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning analytics snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("old analytics snapshots pruned", "deleted", n, "retention", retention)
	}
	return n, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, captured_at FROM navigator_analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.Snapshot
	for rows.Next() {
		var (
			data []byte
			snap analytics.Snapshot
		)
		if err := rows.Scan(&data, &snap.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// activity is the part of Stats that only moves when events arrive.
func activity(st analytics.Stats) [2]int64 {
	return [2]int64{st.TotalEnhancements, st.TotalSearches}
}

// StartPeriodicSave snapshots src every interval until ctx is cancelled,
// then writes one final snapshot. Ticks with no new events since the last
// save are skipped, and snapshots older than retention are pruned after
// each save.
func (s *Store) StartPeriodicSave(ctx context.Context, src StatsSource, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last [2]int64
		saved := false
		save := func(ctx context.Context, force bool) {
			st := src.Stats()
			if saved && !force && activity(st) == last {
				return
			}
			if err := s.SaveSnapshot(ctx, st); err != nil {
				s.logger.Error("snapshot failed", "error", err)
				return
			}
			last, saved = activity(st), true
			if _, err := s.Prune(ctx, retention); err != nil {
				s.logger.Error("snapshot pruning failed", "error", err)
			}
		}

		for {
			select {
			case <-ticker.C:
				save(ctx, false)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if st := src.Stats(); !saved || activity(st) != last {
					save(shutdownCtx, true)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", retention)
}
