package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend string // "memory" or "redis"
	Prefix  string

	// Memory backend only.
	CleanupInterval time.Duration
	MaxBytes        int64
}

// NewEdgeCache picks the backend. Anything other than "redis" is memory.
func NewEdgeCache(cfg Config, redisClient *redis.Client) EdgeCache {
	if cfg.Backend == "redis" {
		return NewRedisEdgeCache(redisClient, RedisConfig{Prefix: cfg.Prefix})
	}
	return NewMemoryEdgeCache(cfg.CleanupInterval, cfg.MaxBytes)
}
