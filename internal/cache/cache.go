// Package cache keeps short-lived engine state in Redis: request counters
// for rate limiting and cached answers from the account status service.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetBiddingPermitted(ctx context.Context, pilotID uuid.UUID, permitted bool, ttl time.Duration) error
	GetBiddingPermitted(ctx context.Context, pilotID uuid.UUID) (permitted bool, found bool, err error)
	// IncrWithExpiry bumps a counter. The expiry is set by the first
	// increment only, so the window does not slide.
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying connection so the audit stream sink shares
// one pool.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Denials are cached as well as approvals.
func (c *RedisCache) SetBiddingPermitted(ctx context.Context, pilotID uuid.UUID, permitted bool, ttl time.Duration) error {
	v := "0"
	if permitted {
		v = "1"
	}
	return c.client.Set(ctx, BiddingPermittedKey(pilotID), v, ttl).Err()
}

func (c *RedisCache) GetBiddingPermitted(ctx context.Context, pilotID uuid.UUID) (bool, bool, error) {
	val, err := c.client.Get(ctx, BiddingPermittedKey(pilotID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return false, false, nil
	case err != nil:
		return false, false, err
	}
	return val == "1", true, nil
}

var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return incrWithExpiry.Run(ctx, c.client, []string{key}, expiry.Milliseconds()).Int64()
}

var _ Cache = (*RedisCache)(nil)
