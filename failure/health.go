package failure

// Health statuses.
const (
	StatusHealthy    = "healthy"
	StatusRecovering = "recovering"
	StatusUnhealthy  = "unhealthy"
)

// Health is an advisory assessment of how a pattern or domain is doing.
type Health struct {
	Status           string   `json:"status"`
	SuccessRate      float64  `json:"success_rate"`
	RecentFailures   int      `json:"recent_failures"`
	DominantCategory Category `json:"dominant_category,omitempty"`
	SuggestedAction  string   `json:"suggested_action,omitempty"`
}

// AssessHealth grades success/failure totals plus the recent failure ring:
// healthy above a 0.8 success rate with fewer than 3 recent failures,
// unhealthy below 0.3 or once recent failures reach the anti-pattern
// threshold (reporting the dominant recent category), recovering in
// between. threshold <= 0 defaults to 3.
func AssessHealth(successes, failures int, recent []FailureRecord, threshold int) Health {
	if threshold <= 0 {
		threshold = 3
	}

	rate := 1.0
	if total := successes + failures; total > 0 {
		rate = float64(successes) / float64(total)
	}

	h := Health{
		SuccessRate:    rate,
		RecentFailures: len(recent),
	}

	switch {
	case rate > 0.8 && len(recent) < 3:
		h.Status = StatusHealthy
	case rate < 0.3 || len(recent) >= threshold:
		h.Status = StatusUnhealthy
		h.DominantCategory = dominantCategory(recent)
		h.SuggestedAction = recommendedAction(h.DominantCategory)
	default:
		h.Status = StatusRecovering
	}
	return h
}

func dominantCategory(recent []FailureRecord) Category {
	counts := make(map[Category]int)
	var dominant Category
	for _, rec := range recent {
		counts[rec.Category]++
		if dominant == "" || counts[rec.Category] > counts[dominant] {
			dominant = rec.Category
		}
	}
	return dominant
}
