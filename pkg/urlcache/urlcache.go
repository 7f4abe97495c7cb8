// Package urlcache remembers resolved download URLs per selection group and
// path for a fixed freshness window.
package urlcache

import (
	"sync"
	"time"

	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// DefaultFreshness stays below the lifetime of a Graph download URL
const DefaultFreshness = 110 * time.Minute

// Config holds cache configuration
type Config struct {
	// Freshness is the maximum age at which an entry is still served
	Freshness time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{Freshness: DefaultFreshness}
}

type key struct {
	group types.SelectionGroup
	path  string
}

type entry struct {
	url       string
	timestamp time.Time
}

// Cache is a read-through advisory cache. Expired entries are never removed,
// only overwritten by the next Set for the same key.
type Cache struct {
	freshness time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entries map[key]entry
}

// New creates a cache; zero config fields take their defaults
func New(cfg Config) *Cache {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		freshness: cfg.Freshness,
		now:       cfg.Now,
		entries:   make(map[key]entry),
	}
}

// Get returns the URL stored for (group, path) if it is younger than the
// freshness window
func (c *Cache) Get(group types.SelectionGroup, path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key{group, path}]
	if !ok || !c.fresh(e) {
		return "", false
	}
	return e.url, true
}

// Set stores url for (group, path), replacing any previous entry
func (c *Cache) Set(group types.SelectionGroup, path, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key{group, path}] = entry{url: url, timestamp: c.now()}
}

// Freshness returns the configured freshness window
func (c *Cache) Freshness() time.Duration {
	return c.freshness
}

func (c *Cache) fresh(e entry) bool {
	return c.now().Sub(e.timestamp) < c.freshness
}

// Stats represents statistics about the cache
type Stats struct {
	TotalEntries   int `json:"total_entries"`
	ValidEntries   int `json:"valid_entries"`
	ExpiredEntries int `json:"expired_entries"`
}

// GetStats returns statistics about the cache
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		if c.fresh(e) {
			stats.ValidEntries++
		} else {
			stats.ExpiredEntries++
		}
	}
	return stats
}
