package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ContentCache is an AdaptiveCache variant that fingerprints payloads on
// every write and feeds the volatility tracker with whether the content
// actually changed since the last time the same pattern was stored.
type ContentCache struct {
	*AdaptiveCache

	mu     sync.Mutex
	hashes map[string]uint64
}

// NewContentCache wraps an AdaptiveCache with content-change detection.
func NewContentCache(inner *AdaptiveCache) *ContentCache {
	return &ContentCache{
		AdaptiveCache: inner,
		hashes:        make(map[string]uint64),
	}
}

// SetContent stores value under key, hashing payload to decide whether the
// content changed since the previous write for the same pattern. The
// observation is recorded into the volatility tracker before the TTL is
// computed, so repeated volatile writes shorten their own lifetime.
// Returns the TTL decision and whether the content changed.
func (c *ContentCache) SetContent(key string, value any, payload []byte, opts TTLOptions) (TTLDecision, bool) {
	sum := xxhash.Sum64(payload)
	pattern := NormalizeKey(key)

	c.mu.Lock()
	prev, seen := c.hashes[pattern]
	changed := seen && prev != sum
	if len(c.hashes) >= 2*c.store.maxEntries {
		// Drop an arbitrary fingerprint to stay bounded; map iteration
		// order is random.
		for k := range c.hashes {
			delete(c.hashes, k)
			break
		}
	}
	c.hashes[pattern] = sum
	c.mu.Unlock()

	c.tracker.Record(key, changed)

	return c.Set(key, value, opts), changed
}
