package memory

import (
	"context"
	"sync"
	"time"

	"carelink/internal/core/ports"
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenCache is the single-process fallback when Redis is disabled.
// Entries are evicted lazily on read.
type MemoryTokenCache struct {
	entries map[string]cachedToken
	mu      sync.RWMutex
}

func NewMemoryTokenCache() ports.TokenCache {
	return &MemoryTokenCache{
		entries: make(map[string]cachedToken),
	}
}

func (c *MemoryTokenCache) Get(ctx context.Context, key string) (string, time.Time, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return "", time.Time{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", time.Time{}, false, nil
	}

	return entry.token, entry.expiresAt, true, nil
}

func (c *MemoryTokenCache) Set(ctx context.Context, key, token string, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedToken{
		token:     token,
		expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return nil
}
