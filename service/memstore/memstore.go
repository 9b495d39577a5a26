package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache represents a best-effort key-value store
type Cache interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type ErrKeyNotFound struct {
	Key string
}

func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %s not found", e.Key)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryCache is a process-local Cache used in tests and as a fallback when no
// redis backend is configured.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: map[string]entry{}}
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expiresAt = time.Now().Add(expiration)
	}
	c.entries[key] = e
	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrKeyNotFound{Key: key}
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, ErrKeyNotFound{Key: key}
	}
	return append([]byte(nil), e.value...), nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
