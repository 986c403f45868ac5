// Package redis holds the Redis-backed fast paths: the payment event
// dedupe cache, job locks, push tokens and rate limit counters.
package redis

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultPingTimeout = 3 * time.Second

// NewClient connects to Redis and pings it once, bounded by the dial
// timeout. API and worker share the pool settings.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg.DialTimeout))
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Int("pool_size", client.Options().PoolSize).
		Msg("redis connected")

	return client, nil
}

func pingTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPingTimeout
	}
	return d
}
