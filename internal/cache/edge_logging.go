package cache

import (
	"context"
	"strings"
	"time"

	"imagegate/internal/metrics"
	"imagegate/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingEdgeCache wraps an EdgeCache with logging + metrics.
type LoggingEdgeCache struct {
	inner EdgeCache
}

// NewLoggingEdgeCache returns a cache that logs and records metrics.
func NewLoggingEdgeCache(inner EdgeCache) EdgeCache {
	return &LoggingEdgeCache{inner: inner}
}

func (c *LoggingEdgeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.EdgeLookupsTotal.WithLabelValues(result).Inc()

	fields := []zap.Field{
		zap.String("cache_tier", "edge"),
		zap.String("edge_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}
	fields = append(fields, edgeKeyFields(key)...)

	if err != nil {
		logger.Error("edge_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("edge_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingEdgeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("cache_tier", "edge"),
		zap.String("edge_key", key),
		zap.Duration("ttl", ttl),
		zap.Int("bytes", len(value)),
		zap.Float64("latency_ms", latencyMs),
	}
	fields = append(fields, edgeKeyFields(key)...)

	if err != nil {
		logger.Error("edge_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("edge_cache_set", fields...)
	}

	return err
}

// Expecting: edge:<GENERATION>:<HASH>
func edgeKeyFields(key string) []zap.Field {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "edge" {
		return nil
	}
	return []zap.Field{
		zap.String("generation", parts[1]),
		zap.String("hash", parts[2]),
	}
}
