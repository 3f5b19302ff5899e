package storage

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Object)}
}

// Get returns a copy of the object at key or a 404 StatusError.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, NotFound(key)
	}

	obj.Body = append([]byte(nil), obj.Body...)
	return &obj, nil
}

// Put stores a copy of obj under key.
func (s *MemoryStore) Put(ctx context.Context, key string, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *obj
	// Copy to decouple from caller's buffer
	stored.Body = append([]byte(nil), obj.Body...)
	if stored.LastModified.IsZero() {
		stored.LastModified = time.Now().UTC()
	}

	s.mu.Lock()
	s.items[key] = stored
	s.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
