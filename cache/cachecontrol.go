package cache

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl is the parsed form of an HTTP Cache-Control header.
// Only the directives the TTL computation cares about are modeled.
type CacheControl struct {
	NoStore        bool
	NoCache        bool
	Private        bool
	MustRevalidate bool
	Immutable      bool

	// MaxAge / SMaxAge are valid only when the matching Has flag is set.
	MaxAge     time.Duration
	SMaxAge    time.Duration
	HasMaxAge  bool
	HasSMaxAge bool
}

// ParseCacheControl parses a Cache-Control header value. Unknown and
// malformed directives are ignored; an empty header parses to the zero
// value.
func ParseCacheControl(header string) CacheControl {
	var cc CacheControl
	for _, part := range strings.Split(header, ",") {
		directive := strings.TrimSpace(strings.ToLower(part))
		if directive == "" {
			continue
		}

		name, value, hasValue := strings.Cut(directive, "=")
		name = strings.TrimSpace(name)

		switch name {
		case "no-store":
			cc.NoStore = true
		case "no-cache":
			cc.NoCache = true
		case "private":
			cc.Private = true
		case "must-revalidate":
			cc.MustRevalidate = true
		case "immutable":
			cc.Immutable = true
		case "max-age":
			if secs, ok := parseDirectiveSeconds(value, hasValue); ok {
				cc.MaxAge = secs
				cc.HasMaxAge = true
			}
		case "s-maxage":
			if secs, ok := parseDirectiveSeconds(value, hasValue); ok {
				cc.SMaxAge = secs
				cc.HasSMaxAge = true
			}
		}
	}
	return cc
}

func parseDirectiveSeconds(value string, hasValue bool) (time.Duration, bool) {
	if !hasValue {
		return 0, false
	}
	value = strings.Trim(strings.TrimSpace(value), `"`)
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
