package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCache_MarkAndSeen(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewEventCache(client)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, "evt_1", time.Hour))

	seen, err = cache.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, s.Exists("payment_event:evt_1"))
}

func TestEventCache_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewEventCache(client)
	ctx := context.Background()

	require.NoError(t, cache.MarkSeen(ctx, "evt_2", time.Second))
	s.FastForward(2 * time.Second)

	seen, err := cache.Seen(ctx, "evt_2")
	assert.NoError(t, err)
	assert.False(t, seen, "expired entry should read as unseen")
}

func TestEventCache_Unavailable(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewEventCache(client)
	s.Close()

	_, err := cache.Seen(context.Background(), "evt_3")
	assert.Error(t, err)
}
