package portscan

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a probe verdict stays authoritative.
const DefaultCacheTTL = 30 * time.Second

// cacheEntry records the last known verdict for one port.
type cacheEntry struct {
	available bool
	at        time.Time
}

// Cache is an in-memory TTL cache of port availability verdicts.
//
// A cached "available" answer can be stale the moment it is read (another
// process may have bound the port); the lifecycle manager's post-bind error
// handling restores correctness, not the cache. An entry is never returned
// as authoritative past its TTL.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int]cacheEntry

	// now is replaceable so tests can run on a fake clock.
	now func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls back
// to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[int]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached verdict for port. ok is false when the port has no
// entry or the entry has expired; expired entries are evicted on read.
func (c *Cache) Get(port int) (available, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[port]
	if !exists {
		return false, false
	}
	if c.now().Sub(entry.at) > c.ttl {
		delete(c.entries, port)
		return false, false
	}
	return entry.available, true
}

// Set records a verdict for port, overwriting any previous entry and
// resetting its timestamp.
func (c *Cache) Set(port int, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[port] = cacheEntry{available: available, at: c.now()}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]cacheEntry)
}

// Len returns the number of live entries, counting expired ones that have
// not yet been evicted by a read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
