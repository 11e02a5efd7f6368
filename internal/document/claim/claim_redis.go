package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "caregate/pkg/domain"
)

const claimKeyPrefix = "caregate:document:claim:"

// RedisClaimer serializes document processing across multiple server
// instances with SET NX. The TTL guards against claims leaked by a crashed
// worker.
type RedisClaimer struct {
	client *redis.Client
}

func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, documentID id.DocumentID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := c.client.SetNX(ctx, claimKeyPrefix+documentID.String(), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire document claim: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, documentID id.DocumentID) error {
	if err := c.client.Del(ctx, claimKeyPrefix+documentID.String()).Err(); err != nil {
		return fmt.Errorf("release document claim: %w", err)
	}
	return nil
}
