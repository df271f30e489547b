package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/infrastructure/config"
	"github.com/cassiomorais/relay/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens the connection pool backing the outbox store. The first
// ping is retried with backoff so a scheduler or router starting alongside
// the database does not die on the race.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("create connection pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
