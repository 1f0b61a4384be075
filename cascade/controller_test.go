package cascade

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/tierfetch/config"
	"github.com/use-agent/tierfetch/models"
	"github.com/use-agent/tierfetch/tier"
)

// fakeStrategy is a scripted tier for cascade tests.
type fakeStrategy struct {
	tierName tier.Tier
	calls    int
	fn       func() (*tier.ExtractResult, error)
}

func (f *fakeStrategy) Name() tier.Tier { return f.tierName }

func (f *fakeStrategy) Extract(ctx context.Context, rawURL string, opts tier.ExtractOptions) (*tier.ExtractResult, error) {
	f.calls++
	return f.fn()
}

var longText = strings.Repeat("plenty of real content here ", 50)

func goodResult() (*tier.ExtractResult, error) {
	return &tier.ExtractResult{
		HTML:    "<html><body><article><p>" + longText + "</p></article></body></html>",
		Content: tier.Content{Text: longText, Markdown: longText},
	}, nil
}

func shortResult() (*tier.ExtractResult, error) {
	return &tier.ExtractResult{
		HTML:    "<html><body><p>tiny</p></body></html>",
		Content: tier.Content{Text: "tiny"},
	}, nil
}

func newFakes() (*fakeStrategy, *fakeStrategy, *fakeStrategy) {
	return &fakeStrategy{tierName: tier.Structural, fn: goodResult},
		&fakeStrategy{tierName: tier.LightweightScript, fn: goodResult},
		&fakeStrategy{tierName: tier.FullRender, fn: goodResult}
}

func newTestController(strategies ...tier.Strategy) *Controller {
	return NewController(strategies, NewPreferences(), config.CascadeConfig{}, config.ValidationConfig{})
}

func TestController_StartsCheap(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := newTestController(structural, lightweight, full)

	res, err := c.Fetch(context.Background(), "https://example.com/page", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.Structural {
		t.Errorf("tier used = %s, want %s", res.TierUsed, tier.Structural)
	}
	if lightweight.calls != 0 || full.calls != 0 {
		t.Errorf("more expensive tiers ran: lightweight=%d full=%d", lightweight.calls, full.calls)
	}
	if len(res.Attempts) != 1 || !res.Attempts[0].Succeeded {
		t.Errorf("attempts = %+v, want one successful attempt", res.Attempts)
	}
}

func TestController_EscalatesOnRejectedContent(t *testing.T) {
	structural, lightweight, full := newFakes()
	structural.fn = shortResult
	c := newTestController(structural, lightweight, full)

	res, err := c.Fetch(context.Background(), "https://example.com/page", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.LightweightScript {
		t.Errorf("tier used = %s, want %s", res.TierUsed, tier.LightweightScript)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Succeeded || !strings.Contains(res.Attempts[0].Reason, "content too short") {
		t.Errorf("first attempt = %+v, want a content-too-short rejection", res.Attempts[0])
	}
	if full.calls != 0 {
		t.Error("full render ran although lightweight succeeded")
	}
}

func TestController_AllTiersFail(t *testing.T) {
	structural, lightweight, full := newFakes()
	structural.fn = shortResult
	lightweight.fn = shortResult
	full.fn = shortResult
	c := newTestController(structural, lightweight, full)

	_, err := c.Fetch(context.Background(), "https://example.com/page", models.FetchOptions{})
	var allTiers *models.AllTiersError
	if !errors.As(err, &allTiers) {
		t.Fatalf("err = %v, want *models.AllTiersError", err)
	}
	if len(allTiers.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(allTiers.Attempts))
	}
	if !strings.Contains(allTiers.LastReason(), "content too short") {
		t.Errorf("last reason = %q, want the final tier's rejection", allTiers.LastReason())
	}
	for i, tn := range []tier.Tier{tier.Structural, tier.LightweightScript, tier.FullRender} {
		if allTiers.Attempts[i].Tier != tn {
			t.Errorf("attempt %d ran %s, want %s", i, allTiers.Attempts[i].Tier, tn)
		}
	}
}

func TestController_ExtractErrorEscalates(t *testing.T) {
	structural, lightweight, full := newFakes()
	structural.fn = func() (*tier.ExtractResult, error) {
		return nil, &tier.HTTPError{StatusCode: 403, URL: "https://example.com/page"}
	}
	c := newTestController(structural, lightweight, full)

	res, err := c.Fetch(context.Background(), "https://example.com/page", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.LightweightScript {
		t.Errorf("tier used = %s, want %s", res.TierUsed, tier.LightweightScript)
	}
}

func TestController_BrowserDomainStartsAtFullRender(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := NewController(
		[]tier.Strategy{structural, lightweight, full},
		NewPreferences(),
		config.CascadeConfig{BrowserDomains: []string{"twitter.com"}},
		config.ValidationConfig{},
	)

	res, err := c.Fetch(context.Background(), "https://twitter.com/someone/status/1", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.FullRender {
		t.Errorf("tier used = %s, want %s", res.TierUsed, tier.FullRender)
	}
	if structural.calls != 0 || lightweight.calls != 0 {
		t.Error("cheap tiers must be skipped for known browser-required domains")
	}

	// Subdomains inherit the deny-list entry.
	full.calls = 0
	if _, err := c.Fetch(context.Background(), "https://mobile.twitter.com/x", models.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if full.calls != 1 {
		t.Error("subdomain of a browser-required domain should start at full render")
	}
}

func TestController_DowngradesWithoutBrowser(t *testing.T) {
	structural, lightweight, _ := newFakes()
	c := NewController(
		[]tier.Strategy{structural, lightweight},
		NewPreferences(),
		config.CascadeConfig{BrowserDomains: []string{"twitter.com"}},
		config.ValidationConfig{},
	)

	res, err := c.Fetch(context.Background(), "https://twitter.com/x", models.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.LightweightScript {
		t.Errorf("tier used = %s, want %s (downgraded)", res.TierUsed, tier.LightweightScript)
	}
	if structural.calls != 0 {
		t.Error("structural should be skipped; the domain still needs scripts")
	}
	if c.FullRenderAvailable() {
		t.Error("FullRenderAvailable must be false with no browser strategy")
	}
}

func TestController_TrustedPreferenceSetsStartTier(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := newTestController(structural, lightweight, full)

	// Not yet trusted: exactly the threshold, needs strictly more.
	c.Preferences().Set(DomainPreference{
		Domain: "example.com", PreferredTier: tier.LightweightScript, SuccessCount: 2,
	})
	if _, err := c.Fetch(context.Background(), "https://example.com/a", models.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if structural.calls != 1 {
		t.Errorf("untrusted preference must not skip structural, calls = %d", structural.calls)
	}

	// Trusted after strictly more successes.
	structural.calls, lightweight.calls = 0, 0
	c.Preferences().Set(DomainPreference{
		Domain: "example.com", PreferredTier: tier.LightweightScript, SuccessCount: 3,
	})
	if _, err := c.Fetch(context.Background(), "https://example.com/b", models.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if structural.calls != 0 || lightweight.calls != 1 {
		t.Errorf("trusted preference should start at lightweight: structural=%d lightweight=%d",
			structural.calls, lightweight.calls)
	}
}

func TestController_TierOverride(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := newTestController(structural, lightweight, full)

	override := tier.FullRender
	res, err := c.Fetch(context.Background(), "https://example.com/a", models.FetchOptions{
		TierOverride: &override,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.TierUsed != tier.FullRender {
		t.Errorf("tier used = %s, want %s", res.TierUsed, tier.FullRender)
	}
	if structural.calls != 0 || lightweight.calls != 0 {
		t.Error("override must skip the cheaper tiers")
	}
}

func TestController_InvalidURL(t *testing.T) {
	structural, _, _ := newFakes()
	c := newTestController(structural)

	for _, bad := range []string{"", "not a url", "https://"} {
		_, err := c.Fetch(context.Background(), bad, models.FetchOptions{})
		if err == nil || !strings.Contains(err.Error(), models.ErrCodeInvalidInput) {
			t.Errorf("Fetch(%q) err = %v, want %s", bad, err, models.ErrCodeInvalidInput)
		}
	}
	if structural.calls != 0 {
		t.Error("invalid input must never reach a strategy")
	}
}

func TestController_CancelledContext(t *testing.T) {
	structural, _, _ := newFakes()
	c := newTestController(structural)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "https://example.com/a", models.FetchOptions{})
	var allTiers *models.AllTiersError
	if !errors.As(err, &allTiers) {
		t.Fatalf("err = %v, want *models.AllTiersError", err)
	}
	if !errors.Is(allTiers.Err, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", allTiers.Err)
	}
	if structural.calls != 0 {
		t.Error("a cancelled context must stop the cascade before any tier runs")
	}
}

func TestController_HysteresisGuardsPreferenceSwitch(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := newTestController(structural, lightweight, full)

	// One stray failure is not enough evidence to abandon a tier that
	// succeeded four times.
	c.Preferences().Set(DomainPreference{
		Domain: "example.com", PreferredTier: tier.Structural,
		SuccessCount: 4, FailureCount: 1,
	})
	c.learnSuccess("example.com", tier.LightweightScript, 100*time.Millisecond)
	pref, _ := c.Preferences().Get("example.com")
	if pref.PreferredTier != tier.Structural {
		t.Errorf("preference switched on thin evidence: %s", pref.PreferredTier)
	}

	// With failures outnumbering half the successes the switch happens.
	c.Preferences().Set(DomainPreference{
		Domain: "example.com", PreferredTier: tier.Structural,
		SuccessCount: 4, FailureCount: 4,
	})
	c.learnSuccess("example.com", tier.LightweightScript, 100*time.Millisecond)
	pref, _ = c.Preferences().Get("example.com")
	if pref.PreferredTier != tier.LightweightScript {
		t.Errorf("preference should have switched, still %s", pref.PreferredTier)
	}
}

func TestController_ExhaustionBumpsPreferredTier(t *testing.T) {
	structural, lightweight, full := newFakes()
	structural.fn = shortResult
	lightweight.fn = shortResult
	full.fn = shortResult
	c := newTestController(structural, lightweight, full)

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background(), "https://example.com/a", models.FetchOptions{}); err == nil {
			t.Fatal("expected the cascade to fail")
		}
	}

	pref, ok := c.Preferences().Get("example.com")
	if !ok {
		t.Fatal("domain should have a preference record")
	}
	if pref.PreferredTier != tier.LightweightScript {
		t.Errorf("preferred tier = %s, want %s after the third exhaustion", pref.PreferredTier, tier.LightweightScript)
	}
	if pref.SuccessCount != 0 || pref.FailureCount != 0 {
		t.Errorf("counters must reset on bump: success=%d failure=%d", pref.SuccessCount, pref.FailureCount)
	}
}

func TestController_AverageResponseTime(t *testing.T) {
	structural, _, _ := newFakes()
	c := newTestController(structural)

	c.learnSuccess("example.com", tier.Structural, 100*time.Millisecond)
	c.learnSuccess("example.com", tier.Structural, 200*time.Millisecond)

	pref, _ := c.Preferences().Get("example.com")
	if pref.AvgResponseTime != 150*time.Millisecond {
		t.Errorf("avg = %v, want 150ms", pref.AvgResponseTime)
	}
	if pref.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2", pref.SuccessCount)
	}
}

func TestController_Stats(t *testing.T) {
	structural, lightweight, full := newFakes()
	c := newTestController(structural, lightweight, full)

	if _, err := c.Fetch(context.Background(), "https://example.com/a", models.FetchOptions{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	st := c.Stats()
	if st.Domains != 1 {
		t.Errorf("domains = %d, want 1", st.Domains)
	}
	if st.DomainsByTier[tier.Structural.String()] != 1 {
		t.Errorf("byTier = %v, want 1 structural domain", st.DomainsByTier)
	}
	if _, ok := st.TierLatency[tier.Structural.String()]; !ok {
		t.Error("latency for the structural tier should be recorded")
	}
	if !st.FullRenderAvailable {
		t.Error("full render is wired in, availability must report true")
	}
}
