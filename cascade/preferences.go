package cascade

import (
	"sync"
	"time"

	"github.com/use-agent/tierfetch/tier"
)

// DomainPreference is the learned fetch profile for one domain. It is
// created on the first fetch and mutated on every attempt. The preferred
// tier moves only after accumulated evidence, never on one bad sample.
type DomainPreference struct {
	Domain          string        `json:"domain"`
	PreferredTier   tier.Tier     `json:"preferred_tier"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	LastUsed        time.Time     `json:"last_used"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Preferences is the shared domain-preference map. All mutation happens
// under one lock; contention is per-domain in practice since concurrent
// cascades for the same domain are rare by design.
type Preferences struct {
	mu    sync.Mutex
	prefs map[string]*DomainPreference
}

// NewPreferences creates an empty preference store.
func NewPreferences() *Preferences {
	return &Preferences{prefs: make(map[string]*DomainPreference)}
}

// Get returns a copy of the domain's preference, if one exists.
func (p *Preferences) Get(domain string) (DomainPreference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pref, ok := p.prefs[domain]
	if !ok {
		return DomainPreference{}, false
	}
	return *pref, true
}

// Set stores a preference verbatim, replacing any existing record.
func (p *Preferences) Set(pref DomainPreference) {
	if pref.Domain == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := pref
	p.prefs[pref.Domain] = &cp
}

// update applies fn to the domain's record under the lock, creating the
// record with the given initial tier when the domain is new. This is the
// read-modify-write primitive all learning goes through.
func (p *Preferences) update(domain string, initial tier.Tier, fn func(*DomainPreference)) DomainPreference {
	p.mu.Lock()
	defer p.mu.Unlock()

	pref, ok := p.prefs[domain]
	if !ok {
		pref = &DomainPreference{Domain: domain, PreferredTier: initial}
		p.prefs[domain] = pref
	}
	fn(pref)
	return *pref
}

// Clear drops all learned preferences.
func (p *Preferences) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs = make(map[string]*DomainPreference)
}

// Export snapshots every preference as plain values so an external layer
// can persist them.
func (p *Preferences) Export() []DomainPreference {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]DomainPreference, 0, len(p.prefs))
	for _, pref := range p.prefs {
		out = append(out, *pref)
	}
	return out
}

// Import restores previously exported preferences, replacing current
// state. Records without a domain are skipped.
func (p *Preferences) Import(prefs []DomainPreference) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prefs = make(map[string]*DomainPreference, len(prefs))
	for i := range prefs {
		pref := prefs[i]
		if pref.Domain == "" {
			continue
		}
		p.prefs[pref.Domain] = &pref
	}
}

// Len reports how many domains carry a learned preference.
func (p *Preferences) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prefs)
}
