package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryEdgeCache_TTL(t *testing.T) {
	c := NewMemoryEdgeCache(10*time.Millisecond, 0)
	defer c.Close()

	ctx := context.Background()
	key := "edge:v1:abc"
	val := []byte("hello")

	if err := c.Set(ctx, key, val, 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Set")
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}

	// Wait for TTL to expire
	time.Sleep(30 * time.Millisecond)

	_, hit, err = c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryEdgeCache_NonPositiveTTLEvicts(t *testing.T) {
	c := NewMemoryEdgeCache(time.Minute, 0)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set with zero ttl failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Fatalf("expected zero ttl to evict the entry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d items", c.Len())
	}
}

func TestMemoryEdgeCache_CopiesValue(t *testing.T) {
	c := NewMemoryEdgeCache(time.Minute, 0)
	defer c.Close()

	ctx := context.Background()
	val := []byte("hello")
	if err := c.Set(ctx, "k", val, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val[0] = 'J'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "hello" {
		t.Fatalf("cache aliased caller buffer: %q", got)
	}
}

func TestMemoryEdgeCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryEdgeCache(time.Minute, 10)
	defer c.Close()

	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		if err := c.Set(ctx, k, []byte("1234"), time.Minute); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}

	// touch "a" so "b" is the oldest
	if _, hit, _ := c.Get(ctx, "a"); !hit {
		t.Fatalf("expected hit on a")
	}
	if err := c.Set(ctx, "c", []byte("1234"), time.Minute); err != nil {
		t.Fatalf("Set c failed: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "b"); hit {
		t.Fatalf("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, hit, _ := c.Get(ctx, k); !hit {
			t.Fatalf("expected %s to survive", k)
		}
	}
	if c.Size() != 8 {
		t.Fatalf("expected 8 bytes held, got %d", c.Size())
	}

	// larger than the whole budget: not stored, nothing else evicted
	if err := c.Set(ctx, "huge", make([]byte, 11), time.Minute); err != nil {
		t.Fatalf("Set huge failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "huge"); hit {
		t.Fatalf("oversized value should not be cached")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}
