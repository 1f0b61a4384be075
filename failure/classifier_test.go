package failure

import (
	"testing"
	"time"
)

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		message    string
		category   Category
		confidence float64
	}{
		{"401", 401, "Unauthorized", CategoryAuthRequired, 1.0},
		{"403", 403, "Forbidden", CategoryAuthRequired, 1.0},
		{"429", 429, "Too many requests", CategoryRateLimited, 1.0},
		{"404", 404, "Not Found", CategoryWrongEndpoint, 1.0},
		{"500", 500, "Internal Server Error", CategoryServerError, 0.9},
		{"503", 503, "Service Unavailable", CategoryServerError, 0.9},
		{"other 4xx falls back", 418, "I'm a teapot", CategoryWrongEndpoint, 0.6},
		{"other 4xx with keyword", 422, "invalid json in request body", CategoryParseError, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, tt.message, 0)
			if got.Category != tt.category {
				t.Errorf("category = %s, want %s", got.Category, tt.category)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %g, want %g", got.Confidence, tt.confidence)
			}
		})
	}
}

func TestClassify_StatusBeatsKeywords(t *testing.T) {
	// The message screams timeout, but a concrete 429 is stronger evidence.
	got := Classify(429, "request timed out waiting for rate window", 0)
	if got.Category != CategoryRateLimited || got.Confidence != 1.0 {
		t.Errorf("got %s@%g, want %s@1.0", got.Category, got.Confidence, CategoryRateLimited)
	}
}

func TestClassify_Keywords(t *testing.T) {
	tests := []struct {
		message  string
		category Category
	}{
		{"context deadline exceeded", CategoryTimeout},
		{"read tcp: ECONNRESET while connecting", CategoryNetworkError},
		{"dial tcp: lookup example.com: no such host", CategoryNetworkError},
		{"API quota exceeded, retry later", CategoryRateLimited},
		{"login required to view this page", CategoryAuthRequired},
		{"upstream sent 502 bad gateway", CategoryServerError},
		{"unexpected token < in JSON at position 0", CategoryParseError},
		{"cannot unmarshal string into int", CategoryParseError},
	}
	for _, tt := range tests {
		got := Classify(0, tt.message, 0)
		if got.Category != tt.category {
			t.Errorf("Classify(0, %q) = %s, want %s", tt.message, got.Category, tt.category)
		}
		if got.Confidence < 0.8 {
			t.Errorf("keyword match confidence = %g, want >= 0.8", got.Confidence)
		}
	}
}

func TestClassify_KeywordOrder(t *testing.T) {
	// Timeout keywords are checked before network keywords.
	got := Classify(0, "network timeout while reading body", 0)
	if got.Category != CategoryTimeout {
		t.Errorf("got %s, want %s (timeout rule runs first)", got.Category, CategoryTimeout)
	}
}

func TestClassify_StructuralHeuristics(t *testing.T) {
	got := Classify(0, `required field "title" is absent`, 0)
	if got.Category != CategoryValidationFailed || got.Confidence != 0.9 {
		t.Errorf("got %s@%g, want %s@0.9", got.Category, got.Confidence, CategoryValidationFailed)
	}

	got = Classify(0, "content too short: 42 < 200 chars", 0)
	if got.Category != CategoryContentTooShort || got.Confidence != 0.9 {
		t.Errorf("got %s@%g, want %s@0.9", got.Category, got.Confidence, CategoryContentTooShort)
	}
}

func TestClassify_SlowFailureLooksLikeTimeout(t *testing.T) {
	got := Classify(0, "operation aborted", 31*time.Second)
	if got.Category != CategoryTimeout || got.Confidence != 0.5 {
		t.Errorf("got %s@%g, want %s@0.5", got.Category, got.Confidence, CategoryTimeout)
	}

	// Under the threshold the duration signal stays quiet.
	got = Classify(0, "operation aborted", 29*time.Second)
	if got.Category != CategoryUnknown {
		t.Errorf("got %s, want %s", got.Category, CategoryUnknown)
	}
}

func TestClassify_Unknown(t *testing.T) {
	got := Classify(0, "something odd happened", 0)
	if got.Category != CategoryUnknown || got.Confidence != 0.3 {
		t.Errorf("got %s@%g, want %s@0.3", got.Category, got.Confidence, CategoryUnknown)
	}
}

func TestClassify_AntiPatternFlag(t *testing.T) {
	worthy := []Category{
		CategoryAuthRequired, CategoryWrongEndpoint,
		CategoryParseError, CategoryValidationFailed,
	}
	flagged := make(map[Category]bool)
	for _, cat := range worthy {
		flagged[cat] = true
	}

	cases := map[Category]Classification{
		CategoryAuthRequired:     Classify(401, "", 0),
		CategoryWrongEndpoint:    Classify(404, "", 0),
		CategoryParseError:       Classify(0, "invalid json", 0),
		CategoryValidationFailed: Classify(0, "missing field: body", 0),
		CategoryTimeout:          Classify(0, "timed out", 0),
		CategoryRateLimited:      Classify(429, "", 0),
		CategoryUnknown:          Classify(0, "???", 0),
	}
	for cat, cls := range cases {
		if cls.ShouldCreateAntiPattern != flagged[cat] {
			t.Errorf("%s: ShouldCreateAntiPattern = %v, want %v", cat, cls.ShouldCreateAntiPattern, flagged[cat])
		}
	}
}

func TestClassify_SuggestedWait(t *testing.T) {
	got := Classify(429, "", 0)
	if got.SuggestedWait != 5*time.Second {
		t.Errorf("rate-limited suggested wait = %v, want 5s", got.SuggestedWait)
	}

	// Suppression and no-retry categories carry no wait.
	if got := Classify(401, "", 0); got.SuggestedWait != 0 {
		t.Errorf("auth suggested wait = %v, want 0", got.SuggestedWait)
	}
	if got := Classify(404, "", 0); got.SuggestedWait != 0 {
		t.Errorf("wrong-endpoint suggested wait = %v, want 0", got.SuggestedWait)
	}
}
