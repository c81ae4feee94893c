package pricing

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-negotiation/internal/models"
)

// DefaultCacheEntries bounds the number of routes a Cache holds.
const DefaultCacheEntries = 10000

// Cache is a small in-memory TTL cache for route lookups. Keys round
// coordinates to ~11m so nearby requests share an entry. Expired entries are
// swept on Set, and at MaxEntries the oldest entry is evicted.
type Cache struct {
	MaxEntries int

	mu        sync.RWMutex
	store     map[string]cacheEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type cacheEntry struct {
	r  Route
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{MaxEntries: DefaultCacheEntries, store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.4f,%.4f->%.4f,%.4f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *Cache) Get(a, b models.Coord) (Route, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Route{}, false
	}
	return e.r, true
}

func (c *Cache) Set(a, b models.Coord, r Route) {
	k := keyFor(a, b)
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.store[k]
	if (!exists && c.MaxEntries > 0 && len(c.store) >= c.MaxEntries) || now.Sub(c.lastSweep) > c.ttl {
		c.sweep(now)
	}
	if !exists && c.MaxEntries > 0 && len(c.store) >= c.MaxEntries {
		c.evictOldest()
	}
	c.store[k] = cacheEntry{r: r, ts: now}
}

// Len reports the number of cached routes, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) sweep(now time.Time) {
	for k, e := range c.store {
		if now.Sub(e.ts) > c.ttl {
			delete(c.store, k)
		}
	}
	c.lastSweep = now
}

func (c *Cache) evictOldest() {
	var oldest string
	var ts time.Time
	for k, e := range c.store {
		if oldest == "" || e.ts.Before(ts) {
			oldest, ts = k, e.ts
		}
	}
	delete(c.store, oldest)
}
