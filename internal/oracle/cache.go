package oracle

import (
	"sync"
	"time"

	"github.com/meridian-data/crossmatch/internal/model"
)

// cacheEntry is one cached ranking with its expiry.
type cacheEntry struct {
	expiry      time.Time
	suggestions model.Suggestions
}

// rankingCache provides thread-safe TTL caching for oracle rankings, keyed by
// a hash of the query record. Repeated escalations of the same record within
// the TTL reuse the oracle's previous answer.
type rankingCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

// newRankingCache creates a cache with the given TTL (default 15 minutes).
func newRankingCache(ttl time.Duration) *rankingCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &rankingCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a ranking if it exists and hasn't expired.
func (c *rankingCache) get(key string) (model.Suggestions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return nil, false
	}

	return entry.suggestions, true
}

// set stores a ranking in the cache.
func (c *rankingCache) set(key string, suggestions model.Suggestions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		suggestions: suggestions,
		expiry:      time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *rankingCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// size returns the number of entries in the cache.
func (c *rankingCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *rankingCache) Close() {
	close(c.stopCh)
}
