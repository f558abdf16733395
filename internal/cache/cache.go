// Package cache memoizes per-category detection results so an unchanged
// capture does not re-run a whole ensemble. Entries expire by TTL and the
// cache is cleared wholesale at hand boundaries so per-hand values never leak
// into the next hand.
package cache

import (
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/detect"
)

type key struct {
	category detect.Category
	tableID  string
}

type entry struct {
	result    detect.Result
	expiresAt time.Time
}

// Cache is a concurrent TTL map of detection results, safe for simultaneous
// reads from detectors and writes from the population step.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[key]entry),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injected clock for deterministic
// expiry tests.
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// Get returns the cached result if present and unexpired.
func (c *Cache) Get(category detect.Category, tableID string) (detect.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key{category, tableID}]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return detect.Result{}, false
	}
	return e.result, true
}

// Put stores a result with the given TTL.
func (c *Cache) Put(category detect.Category, tableID string, result detect.Result, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key{category, tableID}] = entry{
		result:    result,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

// Clear drops every entry. Called at hand boundaries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[key]entry)
	c.mu.Unlock()
}

// Sweep removes expired entries; the driver calls it opportunistically so the
// map does not grow across idle tables.
func (c *Cache) Sweep() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
