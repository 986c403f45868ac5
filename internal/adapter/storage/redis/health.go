package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// HealthCheck reports whether the dedupe cache, job locks and rate limit
// counters are reachable.
type HealthCheck struct {
	client  goredis.UniversalClient
	timeout time.Duration
}

// NewHealthCheck creates a Redis health checker with the default ping timeout.
func NewHealthCheck(client goredis.UniversalClient) *HealthCheck {
	return &HealthCheck{client: client, timeout: defaultPingTimeout}
}

// Ping round-trips a PING within the checker's timeout.
func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "redis"
}
