package cache

import (
	"context"
	"fmt"
	"time"
)

// EdgeKey identifies one edge-cached response. Only the storage key, the
// cache generation and the variance dimensions take part.
type EdgeKey struct {
	Generation string
	StorageKey string
	Origin     string
	Signature  string
	// Hash is the hex BLAKE3 digest of the fields above.
	Hash string
}

// String converts the structured key into the final string used in Redis/map.
func (k EdgeKey) String() string {
	// edge:<GENERATION>:<HASH_HEX>
	return fmt.Sprintf("edge:%s:%s", k.Generation, k.Hash)
}

// EdgeCache is the interface used by the handler.
// Implemented by memory cache (dev) and Redis cache (prod).
type EdgeCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
