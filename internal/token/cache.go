package token

import (
	"sync"
	"time"
)

// Entry is a cached access token.
type Entry struct {
	AccessToken string
	ExpiresAt   time.Time
}

// validAt reports whether e is still usable at now with the given skew.
func (e Entry) validAt(now time.Time, skew time.Duration) bool {
	return e.AccessToken != "" && e.ExpiresAt.After(now.Add(skew))
}

// Cache holds access tokens keyed by user id.
type Cache interface {
	Get(userID string) (Entry, bool)
	Set(userID string, e Entry)
	Delete(userID string)
}

// MemoryCache is a process-local Cache. Expired entries are dropped on read.
type MemoryCache struct {
	mu  sync.RWMutex
	m   map[string]Entry
	now func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]Entry), now: time.Now}
}

func (c *MemoryCache) Get(userID string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.m[userID]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if !e.ExpiresAt.After(c.now()) {
		c.Delete(userID)
		return Entry{}, false
	}
	return e, true
}

func (c *MemoryCache) Set(userID string, e Entry) {
	c.mu.Lock()
	c.m[userID] = e
	c.mu.Unlock()
}

func (c *MemoryCache) Delete(userID string) {
	c.mu.Lock()
	delete(c.m, userID)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
