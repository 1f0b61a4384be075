package failure

import (
	"strings"
	"time"
)

// Category is one of the ten failure classes the engine reasons about.
type Category string

const (
	CategoryTimeout          Category = "timeout"
	CategoryNetworkError     Category = "network_error"
	CategoryRateLimited      Category = "rate_limited"
	CategoryAuthRequired     Category = "auth_required"
	CategoryServerError      Category = "server_error"
	CategoryParseError       Category = "parse_error"
	CategoryWrongEndpoint    Category = "wrong_endpoint"
	CategoryValidationFailed Category = "validation_failed"
	CategoryContentTooShort  Category = "content_too_short"
	CategoryUnknown          Category = "unknown"
)

// Classification is the classifier's verdict for one failure.
type Classification struct {
	Category   Category      `json:"category"`
	Confidence float64       `json:"confidence"`
	Strategy   RetryStrategy `json:"strategy"`

	// SuggestedWait is the recommended pause before the first retry.
	// Zero when the strategy never retries.
	SuggestedWait time.Duration `json:"suggested_wait,omitempty"`

	// ShouldCreateAntiPattern marks categories where repeated failures
	// warrant a suppression record.
	ShouldCreateAntiPattern bool `json:"should_create_anti_pattern"`
}

// keywordRule maps message substrings to a category. Rules run in a fixed
// order; the first hit wins.
type keywordRule struct {
	category   Category
	confidence float64
	keywords   []string
}

var keywordRules = []keywordRule{
	{CategoryTimeout, 0.9, []string{
		"timeout", "timed out", "deadline exceeded", "etimedout",
	}},
	{CategoryNetworkError, 0.9, []string{
		"econnreset", "econnrefused", "enotfound", "no such host",
		"connection refused", "connection reset", "network", "socket hang up",
		"tls handshake", "dns",
	}},
	{CategoryRateLimited, 0.9, []string{
		"rate limit", "too many requests", "throttl", "quota exceeded",
	}},
	{CategoryAuthRequired, 0.9, []string{
		"unauthorized", "forbidden", "authentication", "login required",
		"api key", "credential", "access denied",
	}},
	{CategoryServerError, 0.8, []string{
		"internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "502", "503",
	}},
	{CategoryParseError, 0.9, []string{
		"parse", "unexpected token", "invalid json", "syntax error",
		"unmarshal", "malformed",
	}},
}

// Classify maps a failure to its category, confidence, and retry policy.
//
// Precedence: status code first, then message keywords in fixed order,
// then structural text heuristics, then unknown. statusCode 0 means no
// HTTP status was observed; responseTime 0 means it was not measured.
// The classifier is pure: it never mutates state and never fails.
func Classify(statusCode int, message string, responseTime time.Duration) Classification {
	msg := strings.ToLower(message)

	if statusCode > 0 {
		if c, ok := classifyStatus(statusCode, msg); ok {
			return c
		}
	}

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return verdict(rule.category, rule.confidence)
			}
		}
	}

	// Structural heuristics on validation-style messages.
	switch {
	case strings.Contains(msg, "missing field") || strings.Contains(msg, "required field"):
		return verdict(CategoryValidationFailed, 0.9)
	case strings.Contains(msg, "too short"):
		return verdict(CategoryContentTooShort, 0.9)
	}

	// A failure that took as long as a typical deadline usually is one,
	// even when the message gives nothing away.
	if responseTime >= 30*time.Second {
		return verdict(CategoryTimeout, 0.5)
	}

	return verdict(CategoryUnknown, 0.3)
}

func classifyStatus(statusCode int, msg string) (Classification, bool) {
	switch {
	case statusCode == 401 || statusCode == 403:
		return verdict(CategoryAuthRequired, 1.0), true
	case statusCode == 429:
		return verdict(CategoryRateLimited, 1.0), true
	case statusCode == 404:
		return verdict(CategoryWrongEndpoint, 1.0), true
	case statusCode >= 500:
		return verdict(CategoryServerError, 0.9), true
	case statusCode >= 400:
		// Other 4xx: let the message decide; fall back to wrong_endpoint.
		for _, rule := range keywordRules {
			for _, kw := range rule.keywords {
				if strings.Contains(msg, kw) {
					return verdict(rule.category, rule.confidence), true
				}
			}
		}
		return verdict(CategoryWrongEndpoint, 0.6), true
	}
	return Classification{}, false
}

func verdict(cat Category, confidence float64) Classification {
	p := policyFor(cat)
	c := Classification{
		Category:                cat,
		Confidence:              confidence,
		Strategy:                p.Strategy,
		ShouldCreateAntiPattern: antiPatternWorthy[cat],
	}
	if p.Strategy != RetryNone && p.Strategy != RetrySuppress {
		c.SuggestedWait = p.Initial
	}
	return c
}

// antiPatternWorthy flags the categories where repeated failures indicate
// a systematic problem with the domain rather than transient conditions.
var antiPatternWorthy = map[Category]bool{
	CategoryAuthRequired:     true,
	CategoryWrongEndpoint:    true,
	CategoryParseError:       true,
	CategoryValidationFailed: true,
}
