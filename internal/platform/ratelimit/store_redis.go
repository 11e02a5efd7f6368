package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "caregate:ratelimit:"

// RedisStore is a fixed-window counter shared by every server instance.
// INCR and EXPIRE run in one pipeline so the window always gets a TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	redisKey := redisKeyPrefix + key

	pipe := s.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("increment rate limit window: %w", err)
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read rate limit window ttl: %w", err)
	}
	resetAt := time.Now().Add(ttl)

	taken := int(count.Val())
	if taken > limit {
		return &Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - taken,
		ResetAt:   resetAt,
	}, nil
}
