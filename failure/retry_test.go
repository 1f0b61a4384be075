package failure

import (
	"testing"
	"time"
)

func TestRetryWait_LinearBackoff(t *testing.T) {
	// timeout: 1s * 1.5^(n-1), capped at 10s, 3 retries.
	wants := []time.Duration{
		1 * time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}
	for i, want := range wants {
		if got := RetryWait(CategoryTimeout, i+1); got != want {
			t.Errorf("attempt %d: wait = %v, want %v", i+1, got, want)
		}
	}
	if got := RetryWait(CategoryTimeout, 4); got != NoRetry {
		t.Errorf("attempt past budget: wait = %v, want NoRetry", got)
	}
}

func TestRetryWait_ExponentialCapped(t *testing.T) {
	// network: 1s * 2^(n-1), capped at 30s, 4 retries.
	wants := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, want := range wants {
		if got := RetryWait(CategoryNetworkError, i+1); got != want {
			t.Errorf("attempt %d: wait = %v, want %v", i+1, got, want)
		}
	}

	// rate_limited grows 5s, 10s, 20s, 40s, 80s but stays under the 5m cap.
	prev := time.Duration(0)
	for attempt := 1; attempt <= MaxRetries(CategoryRateLimited); attempt++ {
		got := RetryWait(CategoryRateLimited, attempt)
		if got < prev {
			t.Errorf("attempt %d: wait %v decreased from %v", attempt, got, prev)
		}
		if got > 5*time.Minute {
			t.Errorf("attempt %d: wait %v exceeds the 5m cap", attempt, got)
		}
		prev = got
	}
}

func TestRetryWait_CapApplies(t *testing.T) {
	// server: 2s * 2^(n-1) would be 8s at attempt 3 but caps apply beyond.
	if got := RetryWait(CategoryServerError, 3); got != 8*time.Second {
		t.Errorf("attempt 3: wait = %v, want 8s", got)
	}
}

func TestRetryWait_NeverRetries(t *testing.T) {
	for _, cat := range []Category{CategoryParseError, CategoryWrongEndpoint, CategoryAuthRequired} {
		for attempt := 0; attempt <= 3; attempt++ {
			if got := RetryWait(cat, attempt); got != NoRetry {
				t.Errorf("%s attempt %d: wait = %v, want NoRetry", cat, attempt, got)
			}
		}
	}
}

func TestRetryWait_Immediate(t *testing.T) {
	for _, cat := range []Category{CategoryValidationFailed, CategoryContentTooShort} {
		if got := RetryWait(cat, 1); got != 0 {
			t.Errorf("%s attempt 1: wait = %v, want 0", cat, got)
		}
		if got := RetryWait(cat, 2); got != NoRetry {
			t.Errorf("%s attempt 2: wait = %v, want NoRetry (single retry budget)", cat, got)
		}
	}
}

func TestRetryWait_InvalidAttempt(t *testing.T) {
	if got := RetryWait(CategoryTimeout, 0); got != NoRetry {
		t.Errorf("attempt 0: wait = %v, want NoRetry", got)
	}
	if got := RetryWait(CategoryTimeout, -1); got != NoRetry {
		t.Errorf("attempt -1: wait = %v, want NoRetry", got)
	}
}

func TestRetryWait_UnknownCategoryUsesFallback(t *testing.T) {
	if got := RetryWait(Category("made-up"), 1); got != RetryWait(CategoryUnknown, 1) {
		t.Errorf("unmapped category should fall back to the unknown policy, got %v", got)
	}
}

func TestMaxRetries(t *testing.T) {
	tests := []struct {
		cat  Category
		want int
	}{
		{CategoryTimeout, 3},
		{CategoryNetworkError, 4},
		{CategoryRateLimited, 5},
		{CategoryServerError, 3},
		{CategoryValidationFailed, 1},
		{CategoryUnknown, 2},
		{CategoryParseError, 0},
	}
	for _, tt := range tests {
		if got := MaxRetries(tt.cat); got != tt.want {
			t.Errorf("MaxRetries(%s) = %d, want %d", tt.cat, got, tt.want)
		}
	}
}
