package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEdgeCache implements EdgeCache using Redis. Entries expire through
// Redis TTLs, so nothing sweeps them locally.
type RedisEdgeCache struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

// NewRedisEdgeCache creates a Redis-backed cache.
func NewRedisEdgeCache(client *redis.Client, config RedisConfig) *RedisEdgeCache {
	return &RedisEdgeCache{
		client: client,
		prefix: config.Prefix,
	}
}

// key builds the final Redis key with prefix.
func (c *RedisEdgeCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get retrieves an encoded entry.
// On Redis error, it returns (nil, false, err) so the handler can log and
// treat it as a miss.
func (c *RedisEdgeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	res, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return res, true, nil
}

// Set stores an encoded entry for ttl. A non-positive ttl removes the key,
// matching the memory backend.
func (c *RedisEdgeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if ttl <= 0 {
		if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
		return nil
	}

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping checks if Redis connection is healthy.
func (c *RedisEdgeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
