package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// PushTokenStore implements ports.PushTokenStore as a single Redis hash of
// user id to device token.
type PushTokenStore struct {
	client *goredis.Client
	key    string
}

// NewPushTokenStore creates a Redis-backed push token registry.
func NewPushTokenStore(client *goredis.Client) *PushTokenStore {
	return &PushTokenStore{
		client: client,
		key:    "push_tokens",
	}
}

// Register stores or replaces the user's device token.
func (s *PushTokenStore) Register(ctx context.Context, userID uuid.UUID, token string) error {
	if err := s.client.HSet(ctx, s.key, userID.String(), token).Err(); err != nil {
		return fmt.Errorf("redis push token register: %w", err)
	}
	return nil
}

// Lookup returns the user's token, or "" when none is registered.
func (s *PushTokenStore) Lookup(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := s.client.HGet(ctx, s.key, userID.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis push token lookup: %w", err)
	}
	return token, nil
}

// Remove forgets the user's token.
func (s *PushTokenStore) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.HDel(ctx, s.key, userID.String()).Err(); err != nil {
		return fmt.Errorf("redis push token remove: %w", err)
	}
	return nil
}
