package tier

import (
	"context"
	"fmt"
	"time"
)

// Tier identifies one extraction strategy, ordered by cost: a higher value
// is always more expensive than a lower one.
type Tier int

const (
	// Structural fetches plain HTML and mines embedded framework/structured
	// data. Typical latency 50-200ms.
	Structural Tier = iota

	// LightweightScript fetches over HTTP and hydrates inline application
	// state without a real browser. Typical latency 200-500ms.
	LightweightScript

	// FullRender drives a real browser engine. Typical latency 2-5s.
	// Optional: skipped entirely when no browser is available.
	FullRender
)

// All lists the tiers in escalation (cost) order.
var All = []Tier{Structural, LightweightScript, FullRender}

func (t Tier) String() string {
	switch t {
	case Structural:
		return "structural"
	case LightweightScript:
		return "lightweight-script"
	case FullRender:
		return "full-render"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Next returns the next more expensive tier and false once t is the last.
func (t Tier) Next() (Tier, bool) {
	if t >= FullRender {
		return t, false
	}
	return t + 1, true
}

// Parse maps a tier name back to its Tier value.
func Parse(name string) (Tier, error) {
	switch name {
	case "structural":
		return Structural, nil
	case "lightweight-script":
		return LightweightScript, nil
	case "full-render":
		return FullRender, nil
	}
	return 0, fmt.Errorf("tier: unknown tier %q", name)
}

// Strategy is the interface every extraction tier implements. The cascade
// controller only ever talks to tiers through it.
type Strategy interface {
	// Name returns which tier this strategy implements.
	Name() Tier

	// Extract retrieves and extracts content for the given URL.
	Extract(ctx context.Context, url string, opts ExtractOptions) (*ExtractResult, error)
}

// ExtractOptions carries the per-call knobs a strategy needs.
type ExtractOptions struct {
	// Timeout bounds this single tier attempt. Zero means the strategy's
	// own default applies.
	Timeout time.Duration

	// MinContentLength hints how much text the caller considers useful.
	// Strategies may use it to decide whether mined data is worth keeping.
	MinContentLength int

	// Headers are merged over the strategy's browser-like defaults.
	Headers map[string]string
}

// Content is what a strategy distilled from the page.
type Content struct {
	Title    string
	Text     string
	Markdown string

	// Structured holds framework or JSON-LD payloads when the page embeds
	// any, decoded to plain maps/slices. Nil when nothing was found.
	Structured any
}

// DetectionFlags describe what the markup looked like, so the controller
// and learning layers can reason about why a tier did or didn't suffice.
type DetectionFlags struct {
	// StaticContent is set when the page carries its content in plain HTML.
	StaticContent bool

	// JSHeavy is set when the markup is dominated by script payloads.
	JSHeavy bool

	// NeedsFullRender is set when the strategy believes only a real
	// browser will produce the content (empty SPA root, noscript wall).
	NeedsFullRender bool
}

// ExtractResult is the output of a successful tier attempt.
type ExtractResult struct {
	HTML       string
	Content    Content
	FinalURL   string
	StatusCode int

	// CacheControl is the raw Cache-Control response header, when the
	// strategy saw one. The adaptive cache uses it as a TTL hint.
	CacheControl string

	Flags DetectionFlags
}
