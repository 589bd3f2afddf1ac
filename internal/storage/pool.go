// Package storage is the PostgreSQL backend: research rows keyed by URL id,
// agent state snapshots and the migration runner. The sqlite backend lives in
// storage/lite and satisfies the same interfaces.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "knowyourdev"
	// connectAttempts covers a database container that starts after the server.
	connectAttempts   = 5
	connectBaseDelay  = 500 * time.Millisecond
	healthCheckPeriod = 30 * time.Second
	maxConnIdleTime   = 5 * time.Minute
)

// DB is the pgx-backed store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New opens a pool for dsn and waits until the server answers a ping.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	cfg.HealthCheckPeriod = healthCheckPeriod
	cfg.MaxConnIdleTime = maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connectBaseDelay
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("storage: postgres not reachable yet", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	logger.Info("storage: postgres connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return &DB{pool: pool, logger: logger}, nil
}

// Kind identifies the backend in health output.
func (db *DB) Kind() string { return "postgres" }

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}
