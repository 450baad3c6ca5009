package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockCache mirrors lockouts into Redis so locked users are turned away
// without touching the database. A nil client makes every call a no-op.
type LockCache struct {
	client *redis.Client
}

func NewLockCache(client *redis.Client) *LockCache {
	return &LockCache{client: client}
}

func lockKey(userID int64) string {
	return fmt.Sprintf("otp:lock:%d", userID)
}

func (c *LockCache) Lock(ctx context.Context, userID int64, ttl time.Duration) error {
	if c == nil || c.client == nil || ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, lockKey(userID), "locked", ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", lockKey(userID), err)
	}
	return nil
}

func (c *LockCache) Locked(ctx context.Context, userID int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	err := c.client.Get(ctx, lockKey(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", lockKey(userID), err)
	}
	return true, nil
}
