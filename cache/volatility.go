package cache

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// emaWeight is how much a new inter-change interval contributes to the
// running EMA (0.7 old / 0.3 new).
const emaWeight = 0.3

// decayAfter is how long a pattern must stay unchanged before its observed
// volatility is decayed toward half at read time.
const decayAfter = 24 * time.Hour

// VolatilityRecord tracks how often content changes for one normalized
// (domain, path) pattern.
type VolatilityRecord struct {
	Key         string        `json:"key"`
	Checks      int           `json:"checks"`
	Changes     int           `json:"changes"`
	IntervalEMA time.Duration `json:"interval_ema"`
	LastChecked time.Time     `json:"last_checked"`
	LastChanged time.Time     `json:"last_changed"`
}

// VolatilityTracker records per-pattern content-change observations and
// derives a change rate the adaptive cache uses to shrink or grow TTLs.
// It is bounded: once maxKeys patterns are tracked, the least recently
// checked record is evicted. Safe for concurrent use.
type VolatilityTracker struct {
	mu      sync.Mutex
	records map[string]*VolatilityRecord
	maxKeys int
	now     func() time.Time
}

// NewVolatilityTracker creates a tracker bounded to maxKeys records
// (default 1000 when maxKeys <= 0).
func NewVolatilityTracker(maxKeys int) *VolatilityTracker {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	return &VolatilityTracker{
		records: make(map[string]*VolatilityRecord),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	hexSegment     = regexp.MustCompile(`^[0-9a-fA-F]{8,}$`)
)

// NormalizeKey reduces a URL to its volatility pattern: scheme and query
// are dropped, and path segments that look like numeric IDs or long hex
// tokens become wildcards, so near-duplicate URLs share one record.
// Inputs that do not parse as URLs are used verbatim as opaque keys.
func NormalizeKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if numericSegment.MatchString(seg) || hexSegment.MatchString(seg) {
			segments[i] = "*"
		}
	}
	return strings.ToLower(u.Host) + strings.Join(segments, "/")
}

// Record registers one observation for the URL's pattern: whether the
// content changed since the previous observation.
func (t *VolatilityTracker) Record(rawURL string, changed bool) {
	key := NormalizeKey(rawURL)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		t.evictLocked()
		rec = &VolatilityRecord{Key: key}
		t.records[key] = rec
	}

	rec.Checks++
	rec.LastChecked = now
	if changed {
		if !rec.LastChanged.IsZero() {
			interval := now.Sub(rec.LastChanged)
			if rec.IntervalEMA == 0 {
				rec.IntervalEMA = interval
			} else {
				rec.IntervalEMA = time.Duration(
					float64(rec.IntervalEMA)*(1-emaWeight) + float64(interval)*emaWeight,
				)
			}
		}
		rec.Changes++
		rec.LastChanged = now
	}
}

// Volatility returns the observed change rate (0-1) for the URL's pattern
// and whether any history exists. A pattern unchanged for more than 24h
// reads at half its recorded rate; the stored record is not mutated.
func (t *VolatilityTracker) Volatility(rawURL string) (float64, bool) {
	key := NormalizeKey(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok || rec.Checks == 0 {
		return 0, false
	}

	v := float64(rec.Changes) / float64(rec.Checks)
	if rec.Changes > 0 && t.now().Sub(rec.LastChanged) > decayAfter {
		v /= 2
	}
	return v, true
}

// Len reports how many patterns are currently tracked.
func (t *VolatilityTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Export snapshots all records as plain values for external persistence.
func (t *VolatilityTracker) Export() []VolatilityRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]VolatilityRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	return out
}

// Import restores previously exported records, replacing current state.
func (t *VolatilityTracker) Import(records []VolatilityRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*VolatilityRecord, len(records))
	for i := range records {
		rec := records[i]
		if rec.Key == "" {
			continue
		}
		t.records[rec.Key] = &rec
	}
	for len(t.records) > t.maxKeys {
		t.evictLocked()
	}
}

// evictLocked removes the least recently checked record once the tracker
// is at capacity. Caller must hold t.mu.
func (t *VolatilityTracker) evictLocked() {
	if len(t.records) < t.maxKeys {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, rec := range t.records {
		if oldestKey == "" || rec.LastChecked.Before(oldest) {
			oldestKey = key
			oldest = rec.LastChecked
		}
	}
	if oldestKey != "" {
		delete(t.records, oldestKey)
	}
}
