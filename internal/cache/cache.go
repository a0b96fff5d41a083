// Package cache provides a small TTL cache for discovery results. Controller
// topology and backplane generation probes are expensive (SG_IO round trips,
// IPMI transactions) and change rarely, so backends memoize them here.
package cache

import (
	"sync"
	"time"
)

// TTL tiers. Hardware identity only changes on a swap; LED capability flags
// can change on a firmware update; slot topology changes on hotplug.
const (
	// TTLIdentity covers PCI ids, backplane generation, SAS addresses.
	TTLIdentity = 24 * time.Hour

	// TTLCapability covers em_message support and NPEM capability words.
	TTLCapability = 1 * time.Hour

	// TTLTopology covers enclosure slot maps and host phy counts.
	TTLTopology = 30 * time.Second
)

// Entry holds a cached value with expiration.
type Entry struct {
	Value     interface{}
	ExpiresAt time.Time
	FetchedAt time.Time
}

// IsExpired reports whether the entry has passed its TTL.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age() time.Duration {
	return time.Since(e.FetchedAt)
}

// Cache is a thread-safe TTL keyed store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Get retrieves a live value, or nil when missing or expired.
func (c *Cache) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.IsExpired() {
		return nil
	}
	return entry.Value
}

// Set stores a value with the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key] = &Entry{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		FetchedAt: now,
	}
}

// Delete removes one entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops everything. Used when a rescan invalidates the topology.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if v.IsExpired() {
			delete(c.entries, k)
		}
	}
}

var (
	global *Cache
	once   sync.Once
)

// Global returns the process-wide cache instance.
func Global() *Cache {
	once.Do(func() {
		global = New()
	})
	return global
}
