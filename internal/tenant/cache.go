package tenant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// ContextCache is a time-bounded cache of resolved tenant and store
// contexts. Entries carry their own expiry and are evicted lazily on read
// plus via a periodic sweep, so one stale key never forces the whole cache
// to be dropped.
type ContextCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	ttl        time.Duration
	sweepEvery time.Duration
	logger     *slog.Logger
	lookups    *prometheus.CounterVec

	stopOnce sync.Once
	done     chan struct{}
}

// NewContextCache constructs a ContextCache with the given entry TTL.
func NewContextCache(ttl, sweepEvery time.Duration, logger *slog.Logger) *ContextCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = ttl
	}
	return &ContextCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Instrument attaches a lookup counter labelled by result.
func (c *ContextCache) Instrument(lookups *prometheus.CounterVec) {
	c.lookups = lookups
}

// Start launches the sweep loop. It returns immediately; the loop stops when
// ctx is cancelled or Close is called.
func (c *ContextCache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				evicted := c.sweep(time.Now())
				if evicted > 0 && c.logger != nil {
					c.logger.Debug("context cache sweep", slog.Int("evicted", evicted))
				}
			}
		}
	}()
}

// Close stops the sweep loop. Safe to call more than once.
func (c *ContextCache) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

// GetTenant returns a cached tenant context if present and unexpired.
func (c *ContextCache) GetTenant(identifier string) (*Context, bool) {
	if v, ok := c.get(tenantKey(identifier)); ok {
		tc, ok := v.(*Context)
		return tc, ok
	}
	return nil, false
}

// PutTenant stores a tenant context under both its id and slug so either
// identifier hits on the next lookup.
func (c *ContextCache) PutTenant(identifier string, tc *Context) {
	expires := time.Now().Add(c.ttl)
	c.mu.Lock()
	c.entries[tenantKey(identifier)] = cacheEntry{value: tc, expiresAt: expires}
	if tc.ID != identifier {
		c.entries[tenantKey(tc.ID)] = cacheEntry{value: tc, expiresAt: expires}
	}
	if tc.Slug != "" && tc.Slug != identifier {
		c.entries[tenantKey(tc.Slug)] = cacheEntry{value: tc, expiresAt: expires}
	}
	c.mu.Unlock()
}

// GetStore returns a cached store context if present and unexpired.
func (c *ContextCache) GetStore(storeID string) (*StoreContext, bool) {
	if v, ok := c.get(storeKey(storeID)); ok {
		sc, ok := v.(*StoreContext)
		return sc, ok
	}
	return nil, false
}

// PutStore stores a store context.
func (c *ContextCache) PutStore(storeID string, sc *StoreContext) {
	c.mu.Lock()
	c.entries[storeKey(storeID)] = cacheEntry{value: sc, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateTenant drops a tenant from the cache by any identifier.
func (c *ContextCache) InvalidateTenant(identifier string) {
	c.mu.Lock()
	if e, ok := c.entries[tenantKey(identifier)]; ok {
		if tc, ok := e.value.(*Context); ok {
			delete(c.entries, tenantKey(tc.ID))
			delete(c.entries, tenantKey(tc.Slug))
		}
	}
	delete(c.entries, tenantKey(identifier))
	c.mu.Unlock()
}

// InvalidateStore drops a store from the cache.
func (c *ContextCache) InvalidateStore(storeID string) {
	c.mu.Lock()
	delete(c.entries, storeKey(storeID))
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *ContextCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of live entries, counting expired ones that have
// not been swept yet.
func (c *ContextCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ContextCache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.countLookup("miss")
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry meanwhile.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.countLookup("expired")
		return nil, false
	}
	c.countLookup("hit")
	return e.value, true
}

func (c *ContextCache) countLookup(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

func (c *ContextCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

func tenantKey(identifier string) string { return "tenant:" + identifier }

func storeKey(id string) string { return "store:" + id }
