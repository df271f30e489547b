package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/relay/internal/infrastructure/config"
	"github.com/cassiomorais/relay/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to the broker backing streams, reply lists and
// scheduler locks, retrying the initial ping with backoff so the binaries
// survive the broker coming up after them.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	retryCfg := retry.DefaultConfig()
	if cfg.ConnectRetries > 0 {
		retryCfg.MaxAttempts = uint(cfg.ConnectRetries)
	}
	if cfg.ConnectRetryDelay > 0 {
		retryCfg.InitialDelay = cfg.ConnectRetryDelay
	}

	if err := retry.Do(ctx, retryCfg, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis after %d attempts: %w", retryCfg.MaxAttempts, err)
	}
	return client, nil
}
