package failure

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AntiPattern is a time-bounded suppression rule learned from repeated
// same-category failures on a domain.
type AntiPattern struct {
	ID        string   `json:"id"`
	PatternID string   `json:"pattern_id,omitempty"`
	Domains   []string `json:"domains"`

	// URLPatterns are the regex sources used for matching. Malformed
	// entries are skipped at match time, never a hard error.
	URLPatterns []string `json:"url_patterns"`

	Category          Category      `json:"category"`
	Reason            string        `json:"reason"`
	RecommendedAction string        `json:"recommended_action"`
	Duration          time.Duration `json:"duration"`
	CreatedAt         time.Time     `json:"created_at"`

	// ExpiresAt zero means the suppression never expires.
	ExpiresAt time.Time `json:"expires_at"`

	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// Registry aggregates failures into anti-patterns and answers suppression
// queries. Create/update/match are serialized behind one mutex; write
// rates are low by design. Safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	patterns    map[string]*AntiPattern
	matchers    map[string][]*regexp.Regexp
	minFailures int
	window      time.Duration
	now         func() time.Time
}

// NewRegistry creates a Registry. minFailures <= 0 defaults to 3 and
// window <= 0 to 10 minutes.
func NewRegistry(minFailures int, window time.Duration) *Registry {
	if minFailures <= 0 {
		minFailures = 3
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Registry{
		patterns:    make(map[string]*AntiPattern),
		matchers:    make(map[string][]*regexp.Regexp),
		minFailures: minFailures,
		window:      window,
		now:         time.Now,
	}
}

// suppressionDuration is how long each category's anti-pattern suppresses
// a domain. Systematic problems (auth walls) suppress much longer than
// extraction gaps.
func suppressionDuration(cat Category) time.Duration {
	switch cat {
	case CategoryAuthRequired:
		return 6 * time.Hour
	case CategoryWrongEndpoint:
		return time.Hour
	case CategoryParseError:
		return 30 * time.Minute
	case CategoryValidationFailed:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}

// Create builds an anti-pattern from the supplied failure records. It
// succeeds only when at least minFailures records share the dominant
// category inside the aggregation window; the registry never aggregates
// across categories. Returns the created pattern and true, or nil and
// false when the evidence is insufficient.
func (r *Registry) Create(records []FailureRecord) (*AntiPattern, bool) {
	if len(records) == 0 {
		return nil, false
	}

	now := r.now()
	cutoff := now.Add(-r.window)

	// Dominant category among in-window records.
	byCat := make(map[Category][]FailureRecord)
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		byCat[rec.Category] = append(byCat[rec.Category], rec)
	}
	var dominant Category
	for cat, recs := range byCat {
		if dominant == "" || len(recs) > len(byCat[dominant]) {
			dominant = cat
		}
	}
	matched := byCat[dominant]
	if len(matched) < r.minFailures {
		return nil, false
	}

	domains := make([]string, 0, 2)
	seen := make(map[string]bool)
	var patternID string
	var lastFailure time.Time
	for _, rec := range matched {
		if rec.Domain != "" && !seen[rec.Domain] {
			seen[rec.Domain] = true
			domains = append(domains, rec.Domain)
		}
		if rec.PatternID != "" {
			patternID = rec.PatternID
		}
		if rec.Timestamp.After(lastFailure) {
			lastFailure = rec.Timestamp
		}
	}
	if len(domains) == 0 {
		return nil, false
	}

	duration := suppressionDuration(dominant)
	ap := &AntiPattern{
		ID:                uuid.NewString(),
		PatternID:         patternID,
		Domains:           domains,
		URLPatterns:       domainPatterns(domains),
		Category:          dominant,
		Reason:            fmt.Sprintf("%d %s failures within %s", len(matched), dominant, r.window),
		RecommendedAction: recommendedAction(dominant),
		Duration:          duration,
		CreatedAt:         now,
		ExpiresAt:         now.Add(duration),
		FailureCount:      len(matched),
		LastFailure:       lastFailure,
	}

	r.mu.Lock()
	r.patterns[ap.ID] = ap
	r.matchers[ap.ID] = compileMatchers(ap.URLPatterns)
	r.mu.Unlock()

	slog.Info("anti-pattern created",
		"id", ap.ID, "category", ap.Category,
		"domains", ap.Domains, "expires", ap.ExpiresAt,
	)
	return ap, true
}

// Match returns every active anti-pattern whose URL regexes match the
// given URL. Matching is advisory: the registry raises no error, callers
// refuse suppressed URLs themselves.
func (r *Registry) Match(rawURL string) []*AntiPattern {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*AntiPattern
	for id, ap := range r.patterns {
		if !r.activeLocked(ap, now) {
			continue
		}
		for _, m := range r.matchers[id] {
			if m.MatchString(rawURL) {
				cp := *ap
				out = append(out, &cp)
				break
			}
		}
	}
	return out
}

// Update registers a renewed failure against an existing anti-pattern:
// the expiry slides forward by the original duration and the cumulative
// count grows. Returns false for unknown ids.
func (r *Registry) Update(id string) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	ap, ok := r.patterns[id]
	if !ok {
		return false
	}
	ap.FailureCount++
	ap.LastFailure = now
	if !ap.ExpiresAt.IsZero() {
		ap.ExpiresAt = ap.ExpiresAt.Add(ap.Duration)
	}
	return true
}

// IsActive reports whether the anti-pattern still suppresses. A zero
// expiry never expires; otherwise the pattern is inactive strictly after
// its expiry instant.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ap, ok := r.patterns[id]
	if !ok {
		return false
	}
	return r.activeLocked(ap, r.now())
}

// Get returns a copy of the anti-pattern with the given id.
func (r *Registry) Get(id string) (AntiPattern, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ap, ok := r.patterns[id]
	if !ok {
		return AntiPattern{}, false
	}
	return *ap, true
}

// Export snapshots all anti-patterns as plain values for persistence.
func (r *Registry) Export() []AntiPattern {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AntiPattern, 0, len(r.patterns))
	for _, ap := range r.patterns {
		out = append(out, *ap)
	}
	return out
}

// Import restores previously exported anti-patterns, replacing current
// state. Matchers are recompiled; malformed regex sources are skipped.
func (r *Registry) Import(patterns []AntiPattern) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.patterns = make(map[string]*AntiPattern, len(patterns))
	r.matchers = make(map[string][]*regexp.Regexp, len(patterns))
	for i := range patterns {
		ap := patterns[i]
		if ap.ID == "" {
			continue
		}
		r.patterns[ap.ID] = &ap
		r.matchers[ap.ID] = compileMatchers(ap.URLPatterns)
	}
}

func (r *Registry) activeLocked(ap *AntiPattern, now time.Time) bool {
	return ap.ExpiresAt.IsZero() || !now.After(ap.ExpiresAt)
}

// domainPatterns derives one URL-matching regex source per domain,
// covering the domain itself and its subdomains.
func domainPatterns(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		out = append(out, fmt.Sprintf(`(?i)^https?://([a-z0-9-]+\.)*%s(/|$|\?)`, regexp.QuoteMeta(d)))
	}
	return out
}

// compileMatchers precompiles regex sources, skipping malformed entries.
func compileMatchers(sources []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			slog.Warn("anti-pattern: skipping malformed url pattern", "pattern", src, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

func recommendedAction(cat Category) string {
	switch cat {
	case CategoryAuthRequired:
		return "configure credentials or a session before retrying this domain"
	case CategoryWrongEndpoint:
		return "re-discover the endpoint; the predicted URL shape is stale"
	case CategoryParseError:
		return "update the extraction rules for this domain"
	case CategoryValidationFailed:
		return "review validation thresholds for this domain"
	default:
		return "back off and re-probe after the suppression lapses"
	}
}
