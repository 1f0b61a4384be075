package models

import (
	"fmt"
	"strings"
)

// Error codes used across the fetch core.
const (
	ErrCodeAllTiersFailed = "ALL_TIERS_FAILED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeSuppressed     = "DOMAIN_SUPPRESSED"
)

// AllTiersError is returned when every attempted tier failed or was
// rejected. It wraps the last tier's error and carries the full attempt
// trail so operators can tell a tunable extraction gap from a truly
// unreachable site.
type AllTiersError struct {
	URL      string
	Attempts []TierAttempt
	Err      error // last tier's error or rejection
}

func (e *AllTiersError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: all tiers failed for %s", ErrCodeAllTiersFailed, e.URL)
	if len(e.Attempts) > 0 {
		b.WriteString(" (")
		for i, a := range e.Attempts {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", a.Tier, a.Reason)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AllTiersError) Unwrap() error {
	return e.Err
}

// LastReason returns the rejection/failure reason of the final attempt.
func (e *AllTiersError) LastReason() string {
	if len(e.Attempts) == 0 {
		return ""
	}
	return e.Attempts[len(e.Attempts)-1].Reason
}
