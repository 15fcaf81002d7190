package source

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCacheKey is the key the resolved history is cached under.
const DefaultCacheKey = "prices:full"

// Cache stores Resolved histories with an explicit time-to-live.
type Cache interface {
	// Get returns the cached value and whether it was present and fresh.
	Get(ctx context.Context, key string) (Resolved, bool, error)
	Set(ctx context.Context, key string, v Resolved, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type memEntry struct {
	value   Resolved
	expires time.Time
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache. A nil now uses time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: make(map[string]memEntry), now: now}
}

// Get returns an unexpired entry.
func (c *MemoryCache) Get(_ context.Context, key string) (Resolved, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Resolved{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Resolved{}, false, nil
	}
	return e.value, true, nil
}

// Set stores v until now+ttl.
func (c *MemoryCache) Set(_ context.Context, key string, v Resolved, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{value: v, expires: c.now().Add(ttl)}
	return nil
}

// Invalidate drops key.
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Cached serves a Resolver's result from a Cache until it expires or is
// invalidated. Cache failures degrade to a direct resolve.
type Cached struct {
	inner Resolver
	cache Cache
	key   string
	ttl   time.Duration
	log   *slog.Logger
}

// NewCached wraps inner. An empty key uses DefaultCacheKey.
func NewCached(inner Resolver, cache Cache, key string, ttl time.Duration, log *slog.Logger) *Cached {
	if key == "" {
		key = DefaultCacheKey
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cached{inner: inner, cache: cache, key: key, ttl: ttl, log: log.With("component", "source-cache")}
}

// Resolve returns the cached history or resolves and caches a fresh one.
func (c *Cached) Resolve(ctx context.Context) (Resolved, error) {
	v, ok, err := c.cache.Get(ctx, c.key)
	if err != nil {
		c.log.Warn("cache get failed", "key", c.key, "error", err)
	}
	if ok {
		return v, nil
	}

	v, err = c.inner.Resolve(ctx)
	if err != nil {
		return Resolved{}, err
	}
	if err := c.cache.Set(ctx, c.key, v, c.ttl); err != nil {
		c.log.Warn("cache set failed", "key", c.key, "error", err)
	}
	return v, nil
}

// Invalidate forces the next Resolve to reload.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx, c.key)
}
