package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMemoryMaxBytes bounds the memory backend when no budget is given.
const DefaultMemoryMaxBytes = 256 << 20

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryEdgeCache is an in-process EdgeCache for development and single
// instance deployments. It holds at most maxBytes of entry payload and
// evicts least recently used entries beyond that.
type MemoryEdgeCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List // front = most recently used
	size     int64
	maxBytes int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryEdgeCache creates an in-process edge cache.
// A non-positive cleanupInterval falls back to 5 minutes and a non-positive
// maxBytes to DefaultMemoryMaxBytes.
func NewMemoryEdgeCache(cleanupInterval time.Duration, maxBytes int64) *MemoryEdgeCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryMaxBytes
	}

	c := &MemoryEdgeCache{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		maxBytes: maxBytes,
		stop:     make(chan struct{}),
	}
	go c.sweep(cleanupInterval)
	return c
}

// Get returns the entry bytes for key; expired entries are a miss.
func (c *MemoryEdgeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(el)
		return nil, false, nil
	}
	c.lru.MoveToFront(el)
	return e.value, true, nil
}

// Set stores a copy of value for ttl. A non-positive ttl evicts key, and a
// value larger than the whole budget is not stored.
func (c *MemoryEdgeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	if ttl <= 0 || int64(len(value)) > c.maxBytes {
		return nil
	}

	e := &memoryEntry{
		key:       key,
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	c.items[key] = c.lru.PushFront(e)
	c.size += int64(len(e.value))

	for c.size > c.maxBytes {
		c.removeLocked(c.lru.Back())
	}
	return nil
}

func (c *MemoryEdgeCache) removeLocked(el *list.Element) {
	e := c.lru.Remove(el).(*memoryEntry)
	delete(c.items, e.key)
	c.size -= int64(len(e.value))
}

// sweep drops expired entries every interval until Close.
func (c *MemoryEdgeCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for el := c.lru.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*memoryEntry).expiresAt) {
					c.removeLocked(el)
				}
				el = prev
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweeper. Call this on shutdown or in tests.
func (c *MemoryEdgeCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Len returns the number of entries currently held.
func (c *MemoryEdgeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the payload bytes currently held.
func (c *MemoryEdgeCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Clear drops every entry.
func (c *MemoryEdgeCache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	c.mu.Unlock()
}
