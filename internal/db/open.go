package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// ConnectTimeout bounds how long Open* keeps retrying the first ping.
const ConnectTimeout = 15 * time.Second

// Pinger is anything with a context aware health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresOptions controls the pool created by OpenPostgres.
type PostgresOptions struct {
	ConnString string
	MaxConns   int32
	MinConns   int32
}

// OpenPostgres creates a pgx pool and waits until the server answers.
func OpenPostgres(ctx context.Context, logger *slog.Logger, opts PostgresOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := Ping(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// OpenSQLite opens the sqlite database at dsn. SQLite allows a single writer,
// so the pool is capped at one connection, which also keeps a ":memory:"
// database shared by every query.
func OpenSQLite(ctx context.Context, logger *slog.Logger, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := Ping(ctx, sqlPinger{db: sqlDB}, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if _, err := sqlDB.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	return sqlDB, nil
}

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Ping retries p once a second until it answers or ctx is done.
func Ping(ctx context.Context, p Pinger, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		err := p.Ping(ctx)
		if err == nil {
			return nil
		}

		logger.Warn("unable to establish connection, retrying...", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("db connection timed out or was cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
