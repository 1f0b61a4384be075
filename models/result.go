package models

import (
	"time"

	"github.com/use-agent/tierfetch/tier"
)

// FetchOptions tune a single cascade invocation.
type FetchOptions struct {
	// TierOverride forces the cascade to start at a specific tier,
	// bypassing learned preferences and heuristics.
	TierOverride *tier.Tier

	// Timeout bounds each individual tier attempt. The cascade itself
	// enforces no overall wall-clock deadline; callers needing one wrap
	// the Fetch call in a context deadline.
	Timeout time.Duration

	// MinContentLength overrides the minimum extracted-text length a
	// result must carry to be accepted. Default: 200.
	MinContentLength int

	// Headers are forwarded to every tier attempt.
	Headers map[string]string
}

// TierAttempt records one tier's outcome inside a cascade.
type TierAttempt struct {
	Tier     tier.Tier     `json:"tier"`
	Duration time.Duration `json:"duration"`

	// Succeeded is true when the tier returned a result that also passed
	// content validation.
	Succeeded bool `json:"succeeded"`

	// Reason explains a failure or validation rejection. Empty on success.
	Reason string `json:"reason,omitempty"`
}

// TieredFetchResult is the immutable outcome of a successful cascade.
type TieredFetchResult struct {
	URL      string
	FinalURL string

	// HTML is the raw markup the winning tier produced.
	HTML string

	// Content is the derived title/text/markdown (plus optional
	// structured payload) extracted by the winning tier.
	Content tier.Content

	// TierUsed is the tier whose result was accepted.
	TierUsed tier.Tier

	// Attempts lists every tier tried, in order, with timing and the
	// rejection reason for the ones that did not win.
	Attempts []TierAttempt

	// CacheControl is the raw Cache-Control header observed by the
	// winning tier, if any.
	CacheControl string

	Flags tier.DetectionFlags
}
