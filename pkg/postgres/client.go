// Package postgres opens a pooled lib/pq connection, applies versioned schema
// migrations and classifies PostgreSQL errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/config"
)

// Migration is one schema step. Versions are applied in ascending order and
// recorded, so each runs once per database.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return Wrap(db), nil
}

// Wrap adapts an already opened database handle.
func Wrap(db *sql.DB) *Client {
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate applies every migration newer than the recorded version, each in
// its own transaction. A concurrent migrator racing on the same version is
// not an error: the loser's insert conflicts and its transaction rolls back.
func (c *Client) Migrate(ctx context.Context, migrations ...Migration) error {
	if _, err := c.DB.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	var current int
	if err := c.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	last := 0
	for _, m := range migrations {
		if m.Version <= last {
			return fmt.Errorf("migration %d (%s) is out of order", m.Version, m.Name)
		}
		last = m.Version
		if m.Version <= current {
			continue
		}
		err := c.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		switch {
		case IsUniqueViolation(err):
			c.logger.Info("migration applied concurrently", "version", m.Version, "name", m.Name)
		case err != nil:
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		default:
			c.logger.Info("migration applied", "version", m.Version, "name", m.Name)
		}
	}
	return nil
}

// InTx runs fn in a transaction, committing on nil and rolling back on
// error or panic.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func sqlState(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

func IsUniqueViolation(err error) bool {
	code, ok := sqlState(err)
	return ok && code == "23505"
}

// IsTransient reports errors worth retrying: serialization failures,
// deadlocks, and connection or resource exhaustion classes.
func IsTransient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	code, ok := sqlState(err)
	if !ok {
		return false
	}
	switch code.Class() {
	case "08", "53", "57":
		return true
	}
	return code == "40001" || code == "40P01"
}
