package cache

import (
	"fmt"
	"net/url"
	"time"
)

// Default TTL bounds. Every computed TTL is clamped into [MinTTL, MaxTTL].
const (
	DefaultPageTTL = 5 * time.Minute
	MinTTL         = 30 * time.Second
	MaxTTL         = 24 * time.Hour
)

// Freshness is the caller's staleness preference for one request.
type Freshness string

const (
	// FreshnessDefault applies the normal adaptive TTL derivation.
	FreshnessDefault Freshness = ""

	// FreshnessRealtime pins the TTL at the hard minimum.
	FreshnessRealtime Freshness = "realtime"

	// FreshnessCached doubles the base TTL: the caller prefers a cached
	// answer over a fresh fetch.
	FreshnessCached Freshness = "cached"
)

// TTLOptions carry the per-request inputs to the TTL derivation.
type TTLOptions struct {
	// IsAPIResponse marks machine-readable payloads, which age faster
	// than rendered pages.
	IsAPIResponse bool

	// CacheControl is the raw Cache-Control response header, if any.
	CacheControl string

	// BaseTTL overrides DefaultPageTTL when > 0.
	BaseTTL time.Duration

	// Freshness is the caller's staleness preference.
	Freshness Freshness
}

// TTLDecision is the full trace of one TTL computation, stored alongside
// the entry so operators can see why a value lives as long as it does.
type TTLDecision struct {
	TTL              time.Duration `json:"ttl"`
	Category         Category      `json:"category"`
	Multiplier       float64       `json:"multiplier"`
	RespectedHeaders bool          `json:"respected_headers"`
	VolatilityFactor float64       `json:"volatility_factor"`
	Reason           string        `json:"reason"`
}

// Options configure an AdaptiveCache. Zero values fall back to package
// defaults.
type Options struct {
	MaxEntries        int
	BaseTTL           time.Duration
	MinTTL            time.Duration
	MaxTTL            time.Duration
	VolatilityMaxKeys int

	// Tracker lets callers share one volatility tracker across caches.
	// When nil a private tracker is created.
	Tracker *VolatilityTracker
}

// AdaptiveCache is a bounded in-memory cache whose per-entry TTL adapts to
// the domain's classification, HTTP caching hints, and the learned
// content-change volatility of the URL pattern. Safe for concurrent use.
type AdaptiveCache struct {
	store   *store
	tracker *VolatilityTracker

	baseTTL time.Duration
	minTTL  time.Duration
	maxTTL  time.Duration
}

// New creates an AdaptiveCache.
func New(opts Options) *AdaptiveCache {
	if opts.BaseTTL <= 0 {
		opts.BaseTTL = DefaultPageTTL
	}
	if opts.MinTTL <= 0 {
		opts.MinTTL = MinTTL
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = MaxTTL
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewVolatilityTracker(opts.VolatilityMaxKeys)
	}
	return &AdaptiveCache{
		store:   newStore(opts.MaxEntries),
		tracker: tracker,
		baseTTL: opts.BaseTTL,
		minTTL:  opts.MinTTL,
		maxTTL:  opts.MaxTTL,
	}
}

// Tracker exposes the volatility tracker feeding this cache.
func (c *AdaptiveCache) Tracker() *VolatilityTracker {
	return c.tracker
}

// CalculateTTL derives the TTL for one request. Each step short-circuits:
//
//  1. realtime freshness      → hard minimum
//  2. cached freshness        → double base, bounded
//  3. explicit caching headers (no-store/no-cache → minimum;
//     max-age/s-maxage → override, bounded)
//  4. domain-category multiplier
//  5. volatility factor (shrink when hot, grow when cold)
//  6. clamp to [min, max]
//
// The computation is pure given the tracker state: identical inputs yield
// identical decisions until a volatility observation lands.
func (c *AdaptiveCache) CalculateTTL(rawURL string, opts TTLOptions) TTLDecision {
	base := opts.BaseTTL
	if base <= 0 {
		base = c.baseTTL
	}
	if opts.IsAPIResponse {
		// API payloads age roughly twice as fast as rendered pages.
		base /= 2
	}

	category := CategoryDefault
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		category = ClassifyDomain(u.Hostname())
	}

	decision := TTLDecision{
		Category:         category,
		Multiplier:       1,
		VolatilityFactor: 1,
	}

	switch opts.Freshness {
	case FreshnessRealtime:
		decision.TTL = c.minTTL
		decision.Reason = "freshness=realtime pins minimum TTL"
		return decision
	case FreshnessCached:
		decision.TTL = c.clamp(2 * base)
		decision.Reason = "freshness=cached doubles base TTL"
		return decision
	}

	if opts.CacheControl != "" {
		cc := ParseCacheControl(opts.CacheControl)
		switch {
		case cc.NoStore || cc.NoCache:
			decision.TTL = c.minTTL
			decision.RespectedHeaders = true
			decision.Reason = "cache-control forbids reuse"
			return decision
		case cc.HasSMaxAge:
			decision.TTL = c.clamp(cc.SMaxAge)
			decision.RespectedHeaders = true
			decision.Reason = fmt.Sprintf("cache-control s-maxage=%s", cc.SMaxAge)
			return decision
		case cc.HasMaxAge:
			decision.TTL = c.clamp(cc.MaxAge)
			decision.RespectedHeaders = true
			decision.Reason = fmt.Sprintf("cache-control max-age=%s", cc.MaxAge)
			return decision
		}
	}

	decision.Multiplier = category.Multiplier()
	ttl := time.Duration(float64(base) * decision.Multiplier)
	reason := fmt.Sprintf("category %s x%g", category, decision.Multiplier)

	if v, ok := c.tracker.Volatility(rawURL); ok {
		switch {
		case v > 0.5:
			decision.VolatilityFactor = 1 - (v - 0.5)
		case v < 0.2:
			decision.VolatilityFactor = 1 + (0.2 - v)
		}
		if decision.VolatilityFactor != 1 {
			ttl = time.Duration(float64(ttl) * decision.VolatilityFactor)
			reason = fmt.Sprintf("%s, volatility %.2f x%.2f", reason, v, decision.VolatilityFactor)
		}
	}

	decision.TTL = c.clamp(ttl)
	decision.Reason = reason
	return decision
}

func (c *AdaptiveCache) clamp(ttl time.Duration) time.Duration {
	if ttl < c.minTTL {
		return c.minTTL
	}
	if ttl > c.maxTTL {
		return c.maxTTL
	}
	return ttl
}

// Get returns the cached value for the key, if present and fresh.
func (c *AdaptiveCache) Get(key string) (any, bool) {
	return c.store.get(key)
}

// Has reports whether a fresh entry exists without affecting hit stats.
func (c *AdaptiveCache) Has(key string) bool {
	return c.store.has(key)
}

// Set stores a value under the adaptively computed TTL and returns the
// decision trace.
func (c *AdaptiveCache) Set(key string, value any, opts TTLOptions) TTLDecision {
	decision := c.CalculateTTL(key, opts)
	c.store.set(key, value, decision.TTL, decision)
	return decision
}

// Delete removes one entry.
func (c *AdaptiveCache) Delete(key string) {
	c.store.delete(key)
}

// Clear removes every entry.
func (c *AdaptiveCache) Clear() {
	c.store.clear()
}

// ClearDomain removes all entries for a domain and its subdomains and
// returns how many were evicted. Keys that are not URLs are left alone.
func (c *AdaptiveCache) ClearDomain(domain string) int {
	return c.store.clearDomain(domain)
}

// GetStats returns a usage snapshot.
func (c *AdaptiveCache) GetStats() Stats {
	return c.store.stats()
}

// WithCache returns the cached value for key, or computes, stores, and
// returns a fresh one. Compute errors are returned without caching.
func (c *AdaptiveCache) WithCache(key string, opts TTLOptions, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, opts)
	return v, nil
}
