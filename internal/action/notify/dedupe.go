package notify

import (
	"sync"
	"time"
)

// dedupeTTL is how long a delivery key is remembered. Retries of the same
// event land well inside this; after expiry a genuinely new dispatch for a
// recycled event ID may deliver again.
const dedupeTTL = 24 * time.Hour

// dedupeCache is a TTL set of delivery keys. Entries expire lazily on
// access and in bulk once the map grows past sweepThreshold.
type dedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

const sweepThreshold = 100_000

func newDedupeCache(ttl time.Duration) *dedupeCache {
	return &dedupeCache{ttl: ttl, entries: make(map[string]time.Time)}
}

// remember returns true if key was not present (and records it), false if
// the key is a live duplicate.
func (c *dedupeCache) remember(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return false
	}
	if len(c.entries) >= sweepThreshold {
		for k, exp := range c.entries {
			if now.After(exp) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = now.Add(c.ttl)
	return true
}

func (c *dedupeCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
