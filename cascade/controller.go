package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/tierfetch/config"
	"github.com/use-agent/tierfetch/failure"
	"github.com/use-agent/tierfetch/models"
	"github.com/use-agent/tierfetch/tier"
)

// Controller orchestrates the tier cascade: pick a starting tier from
// learned preference or heuristics, run tiers one at a time in escalating
// cost order, validate each result, and feed the learning state. Tiers
// never run concurrently inside one fetch; a later tier's cost is
// justified only after the earlier one proved insufficient. Fetches for
// different URLs run fully concurrently.
type Controller struct {
	strategies map[tier.Tier]tier.Strategy
	order      []tier.Tier
	prefs      *Preferences
	validator  *Validator
	cfg        config.CascadeConfig

	mu          sync.Mutex
	tierLatency map[tier.Tier]*latencyStat
}

type latencyStat struct {
	total   time.Duration
	samples int
}

// Stats is the informational surface of the controller. Nothing in the
// cascade logic consumes it.
type Stats struct {
	Domains             int                      `json:"domains"`
	DomainsByTier       map[string]int           `json:"domains_by_tier"`
	TierLatency         map[string]time.Duration `json:"tier_latency"`
	FullRenderAvailable bool                     `json:"full_render_available"`
}

// NewController creates a Controller over the given strategies. The
// full-render tier is simply omitted from the strategy list when no
// browser is available; the cascade then never escalates past
// lightweight-script.
func NewController(strategies []tier.Strategy, prefs *Preferences, cfg config.CascadeConfig, valCfg config.ValidationConfig) *Controller {
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = 30 * time.Second
	}
	if cfg.PreferenceMinSuccesses <= 0 {
		cfg.PreferenceMinSuccesses = 2
	}
	if prefs == nil {
		prefs = NewPreferences()
	}

	byTier := make(map[tier.Tier]tier.Strategy, len(strategies))
	order := make([]tier.Tier, 0, len(strategies))
	for _, s := range strategies {
		if _, dup := byTier[s.Name()]; dup {
			continue
		}
		byTier[s.Name()] = s
		order = append(order, s.Name())
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	return &Controller{
		strategies:  byTier,
		order:       order,
		prefs:       prefs,
		validator:   NewValidator(valCfg),
		cfg:         cfg,
		tierLatency: make(map[tier.Tier]*latencyStat),
	}
}

// Preferences exposes the learning store for persistence round-trips.
func (c *Controller) Preferences() *Preferences {
	return c.prefs
}

// FullRenderAvailable reports whether the full-render tier is wired in.
func (c *Controller) FullRenderAvailable() bool {
	_, ok := c.strategies[tier.FullRender]
	return ok
}

// Fetch runs the cascade for one URL. It returns the first tier result
// that passes validation, or a *models.AllTiersError describing every
// attempt once all tiers failed or were rejected.
//
// The controller enforces no overall deadline, only per-tier timeouts.
// Callers needing a wall-clock bound wrap the call in a context deadline,
// which still cuts the cascade short between tiers.
func (c *Controller) Fetch(ctx context.Context, rawURL string, opts models.FetchOptions) (*models.TieredFetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%s: not a fetchable URL: %q", models.ErrCodeInvalidInput, rawURL)
	}
	domain := strings.ToLower(u.Hostname())

	start := c.startTier(domain, opts.TierOverride)
	plan := c.planFrom(start)
	if len(plan) == 0 {
		return nil, fmt.Errorf("%s: no strategies configured", models.ErrCodeInvalidInput)
	}

	// First contact with a domain creates its preference record.
	c.prefs.update(domain, start, func(p *DomainPreference) {
		p.LastUsed = time.Now()
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.TierTimeout
	}

	var attempts []models.TierAttempt
	var lastErr error

	for _, t := range plan {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		strategy := c.strategies[t]
		began := time.Now()
		res, extractErr := strategy.Extract(ctx, rawURL, tier.ExtractOptions{
			Timeout:          timeout,
			MinContentLength: opts.MinContentLength,
			Headers:          opts.Headers,
		})
		elapsed := time.Since(began)
		c.recordLatency(t, elapsed)

		if extractErr != nil {
			cls := failure.Classify(statusOf(extractErr), extractErr.Error(), elapsed)
			slog.Debug("tier failed",
				"url", rawURL, "tier", t.String(),
				"category", cls.Category, "error", extractErr,
			)
			attempts = append(attempts, models.TierAttempt{
				Tier: t, Duration: elapsed, Reason: extractErr.Error(),
			})
			lastErr = extractErr
			continue
		}

		if ok, reason := c.validator.Validate(res, opts.MinContentLength); !ok {
			slog.Debug("tier rejected",
				"url", rawURL, "tier", t.String(), "reason", reason,
			)
			attempts = append(attempts, models.TierAttempt{
				Tier: t, Duration: elapsed, Reason: reason,
			})
			lastErr = errors.New(reason)
			continue
		}

		attempts = append(attempts, models.TierAttempt{
			Tier: t, Duration: elapsed, Succeeded: true,
		})
		c.learnSuccess(domain, t, elapsed)

		slog.Info("fetch succeeded",
			"url", rawURL, "tier", t.String(),
			"attempts", len(attempts), "duration", elapsed,
		)
		return &models.TieredFetchResult{
			URL:          rawURL,
			FinalURL:     res.FinalURL,
			HTML:         res.HTML,
			Content:      res.Content,
			TierUsed:     t,
			Attempts:     attempts,
			CacheControl: res.CacheControl,
			Flags:        res.Flags,
		}, nil
	}

	c.learnExhaustion(domain)

	slog.Warn("all tiers failed", "url", rawURL, "attempts", len(attempts), "error", lastErr)
	return nil, &models.AllTiersError{URL: rawURL, Attempts: attempts, Err: lastErr}
}

// startTier picks where the cascade begins, in priority order: explicit
// override, trusted learned preference, the browser-required deny-list,
// then the cheapest tier.
func (c *Controller) startTier(domain string, override *tier.Tier) tier.Tier {
	if override != nil {
		return c.downgrade(*override)
	}

	if pref, ok := c.prefs.Get(domain); ok && pref.SuccessCount > c.cfg.PreferenceMinSuccesses {
		return c.downgrade(pref.PreferredTier)
	}

	if c.needsBrowser(domain) {
		return c.downgrade(tier.FullRender)
	}

	return tier.Structural
}

// downgrade maps full-render down to lightweight-script when no browser
// strategy is wired in.
func (c *Controller) downgrade(t tier.Tier) tier.Tier {
	if t == tier.FullRender && !c.FullRenderAvailable() {
		return tier.LightweightScript
	}
	return t
}

// planFrom lists the configured tiers at or above the starting tier, in
// increasing cost order.
func (c *Controller) planFrom(start tier.Tier) []tier.Tier {
	plan := make([]tier.Tier, 0, len(c.order))
	for _, t := range c.order {
		if t >= start {
			plan = append(plan, t)
		}
	}
	return plan
}

func (c *Controller) needsBrowser(domain string) bool {
	for _, d := range c.cfg.BrowserDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// learnSuccess records a validated success: counters, the running average
// response time, and the hysteresis-guarded preference switch. The tier
// preference moves to the tier actually used only when failures exceed
// half the successes; one good result on another tier is not evidence.
func (c *Controller) learnSuccess(domain string, used tier.Tier, elapsed time.Duration) {
	c.prefs.update(domain, used, func(p *DomainPreference) {
		p.SuccessCount++
		n := int64(p.SuccessCount)
		p.AvgResponseTime = time.Duration((int64(p.AvgResponseTime)*(n-1) + int64(elapsed)) / n)
		p.LastUsed = time.Now()

		if used != p.PreferredTier && p.FailureCount > p.SuccessCount/2 {
			slog.Info("tier preference switched",
				"domain", domain, "from", p.PreferredTier.String(), "to", used.String(),
			)
			p.PreferredTier = used
		}
	})
}

// learnExhaustion records a fully failed cascade. After more than two
// failures on a non-full-render preference the preferred tier is bumped
// preemptively and both counters reset, so the next fetch starts higher
// up instead of re-proving the cheap tiers useless.
func (c *Controller) learnExhaustion(domain string) {
	c.prefs.update(domain, tier.Structural, func(p *DomainPreference) {
		p.FailureCount++
		p.LastUsed = time.Now()

		if p.FailureCount > 2 && p.PreferredTier != tier.FullRender {
			next, ok := p.PreferredTier.Next()
			if !ok {
				return
			}
			slog.Info("tier preference bumped after repeated failures",
				"domain", domain, "from", p.PreferredTier.String(), "to", next.String(),
			)
			p.PreferredTier = next
			p.SuccessCount = 0
			p.FailureCount = 0
		}
	})
}

func (c *Controller) recordLatency(t tier.Tier, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stat, ok := c.tierLatency[t]
	if !ok {
		stat = &latencyStat{}
		c.tierLatency[t] = stat
	}
	stat.total += elapsed
	stat.samples++
}

// Stats snapshots the informational surface: domain counts by preferred
// tier, per-tier average attempt latency, full-render availability.
func (c *Controller) Stats() Stats {
	st := Stats{
		DomainsByTier:       make(map[string]int),
		TierLatency:         make(map[string]time.Duration),
		FullRenderAvailable: c.FullRenderAvailable(),
	}

	for _, pref := range c.prefs.Export() {
		st.Domains++
		st.DomainsByTier[pref.PreferredTier.String()]++
	}

	c.mu.Lock()
	for t, stat := range c.tierLatency {
		if stat.samples > 0 {
			st.TierLatency[t.String()] = stat.total / time.Duration(stat.samples)
		}
	}
	c.mu.Unlock()

	return st
}

// statusOf pulls an HTTP status out of a tier error chain, 0 when none.
func statusOf(err error) int {
	var httpErr *tier.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
