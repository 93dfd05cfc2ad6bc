package chart

import (
	"context"
	"sync"
	"time"

	"chartengine/internal/model"
)

// Cache stores the latest complete-analysis payload per symbol.
type Cache interface {
	Get(ctx context.Context, symbol string) (model.Payload, bool, error)
	Put(ctx context.Context, symbol string, p model.Payload) error
}

// MemoryCache is an in-process Cache with a TTL and a size bound. The oldest
// entry is evicted first when the cache is full.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]cacheEntry
}

type cacheEntry struct {
	payload model.Payload
	stored  time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache. now may be nil to use time.Now; a
// maxEntries of zero or less means unbounded.
func NewMemoryCache(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns a live entry. Expired entries are dropped on access.
func (c *MemoryCache) Get(_ context.Context, symbol string) (model.Payload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		return model.Payload{}, false, nil
	}
	if c.expired(e) {
		delete(c.entries, symbol)
		return model.Payload{}, false, nil
	}
	return e.payload.Clone(), true, nil
}

// Put stores p under symbol, evicting expired and then oldest entries to
// stay within the size bound.
func (c *MemoryCache) Put(_ context.Context, symbol string, p model.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = cacheEntry{payload: p.Clone(), stored: c.now()}
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return nil
	}
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) > c.maxEntries {
		oldest := ""
		var at time.Time
		for k, e := range c.entries {
			if oldest == "" || e.stored.Before(at) {
				oldest, at = k, e.stored
			}
		}
		delete(c.entries, oldest)
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.stored) >= c.ttl
}
