package cache

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// Entry holds one cached value together with the trace of how its TTL was
// computed.
type Entry struct {
	Value     any
	WrittenAt time.Time
	ExpiresAt time.Time
	Decision  TTLDecision
}

// Stats is a snapshot of store usage.
type Stats struct {
	Entries int     `json:"entries"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// store is the bounded in-memory entry map behind AdaptiveCache.
// Expired entries are evicted lazily on Get; at capacity, Set evicts the
// single oldest-by-write-time entry. Safe for concurrent use.
type store struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int
	hits       uint64
	misses     uint64
	now        func() time.Time
}

func newStore(maxEntries int) *store {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &store{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// get returns the entry's value if present and fresh. An expired entry is
// deleted and counts as a miss.
func (s *store) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.now().After(e.ExpiresAt) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.Value, true
}

// has reports freshness without touching the hit/miss counters.
func (s *store) has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return ok && !s.now().After(e.ExpiresAt)
}

func (s *store) set(key string, value any, ttl time.Duration, decision TTLDecision) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[key] = &Entry{
		Value:     value,
		WrittenAt: now,
		ExpiresAt: now.Add(ttl),
		Decision:  decision,
	}
}

func (s *store) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// clearDomain removes every entry whose key parses as a URL on the given
// domain or one of its subdomains. Non-URL keys are skipped. Returns the
// number of removed entries.
func (s *store) clearDomain(domain string) int {
	domain = strings.ToLower(domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		u, err := url.Parse(key)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == domain || strings.HasSuffix(host, "."+domain) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *store) stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Entries: len(s.entries),
		Hits:    s.hits,
		Misses:  s.misses,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

// evictOldestLocked removes the entry with the oldest write time.
// Caller must hold s.mu.
func (s *store) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range s.entries {
		if oldestKey == "" || e.WrittenAt.Before(oldest) {
			oldestKey = key
			oldest = e.WrittenAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
