package failure

import (
	"sync"
	"time"
)

// maxRecordsPerPattern bounds each per-pattern ring buffer.
const maxRecordsPerPattern = 10

// FailureRecord is one observed failure, as reported by the caller.
type FailureRecord struct {
	Timestamp    time.Time     `json:"timestamp"`
	Category     Category      `json:"category"`
	StatusCode   int           `json:"status_code,omitempty"`
	Message      string        `json:"message"`
	Domain       string        `json:"domain"`
	URL          string        `json:"url"`
	PatternID    string        `json:"pattern_id,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
}

// Log keeps a bounded ring of recent failures plus monotonic per-category
// counts, keyed by source pattern id. Safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	recent map[string][]FailureRecord
	counts map[string]map[Category]int
}

// NewLog creates an empty failure log.
func NewLog() *Log {
	return &Log{
		recent: make(map[string][]FailureRecord),
		counts: make(map[string]map[Category]int),
	}
}

// Record appends a failure to its pattern's ring buffer (max 10, oldest
// dropped) and bumps the monotonic category count.
func (l *Log) Record(rec FailureRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ring := append(l.recent[rec.PatternID], rec)
	if len(ring) > maxRecordsPerPattern {
		ring = ring[len(ring)-maxRecordsPerPattern:]
	}
	l.recent[rec.PatternID] = ring

	byCat, ok := l.counts[rec.PatternID]
	if !ok {
		byCat = make(map[Category]int)
		l.counts[rec.PatternID] = byCat
	}
	byCat[rec.Category]++
}

// Recent returns a copy of the pattern's ring buffer, oldest first.
func (l *Log) Recent(patternID string) []FailureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	ring := l.recent[patternID]
	out := make([]FailureRecord, len(ring))
	copy(out, ring)
	return out
}

// Counts returns a copy of the pattern's monotonic per-category totals.
func (l *Log) Counts(patternID string) map[Category]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Category]int, len(l.counts[patternID]))
	for cat, n := range l.counts[patternID] {
		out[cat] = n
	}
	return out
}

// Reset clears both the ring buffer and the counts for a pattern.
func (l *Log) Reset(patternID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.recent, patternID)
	delete(l.counts, patternID)
}
