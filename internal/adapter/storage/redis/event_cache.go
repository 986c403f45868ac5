package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache implements ports.EventCache. A miss says nothing; the
// processed event table has the final word.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a Redis-backed payment event cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "payment_event:",
	}
}

// Seen reports whether eventID was marked within its TTL.
func (c *EventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := c.client.Get(ctx, c.prefix+eventID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis event cache get: %w", err)
	}
	return true, nil
}

// MarkSeen records eventID for ttl.
func (c *EventCache) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+eventID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis event cache set: %w", err)
	}
	return nil
}
