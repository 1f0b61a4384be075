package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tierfetch configuration.
type Config struct {
	Cascade    CascadeConfig
	Validation ValidationConfig
	Client     ClientConfig
	Browser    BrowserConfig
	Cache      CacheConfig
	Failure    FailureConfig
	Log        LogConfig
}

// CascadeConfig controls the tier cascade controller.
type CascadeConfig struct {
	// TierTimeout is the default per-tier attempt deadline.
	TierTimeout time.Duration // default: 30s

	// PreferenceMinSuccesses is how many recorded successes a domain
	// needs before its learned preference is trusted as the start tier.
	PreferenceMinSuccesses int // default: 2 (strictly more than)

	// BrowserDomains lists domains known to require full rendering.
	BrowserDomains []string
}

// ValidationConfig controls content acceptance thresholds.
type ValidationConfig struct {
	// MinContentLength is the minimum extracted text length.
	MinContentLength int // default: 200

	// LoadingMarkerThreshold is the text length below which a loading
	// marker in the markup rejects the result.
	LoadingMarkerThreshold int // default: 500

	// StructureThreshold is the text length below which missing
	// structural markers reject the result.
	StructureThreshold int // default: 1000
}

// ClientConfig controls the shared HTTP client used by the cheap tiers.
type ClientConfig struct {
	// Timeout is the default HTTP request deadline.
	Timeout time.Duration // default: 10s

	// DomainRPS is the sustained per-domain request rate.
	DomainRPS float64 // default: 2

	// DomainBurst is the per-domain burst size.
	DomainBurst int // default: 4

	// Proxy is an optional proxy URL for all outbound requests.
	Proxy string
}

// BrowserConfig controls the full-render tier.
type BrowserConfig struct {
	// Enabled toggles the full-render tier. When false the cascade
	// never escalates past lightweight-script.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables the browser sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the browser binary path.
	Bin string
}

// CacheConfig controls the adaptive cache.
type CacheConfig struct {
	// MaxEntries is the bounded store capacity.
	MaxEntries int // default: 500

	// BaseTTL is the default page TTL before multipliers.
	BaseTTL time.Duration // default: 5m

	// MinTTL and MaxTTL clamp every computed TTL.
	MinTTL time.Duration // default: 30s
	MaxTTL time.Duration // default: 24h

	// VolatilityMaxKeys bounds the volatility tracker.
	VolatilityMaxKeys int // default: 1000
}

// FailureConfig controls the anti-pattern registry.
type FailureConfig struct {
	// MinFailures is how many same-category failures must accumulate
	// before an anti-pattern is created.
	MinFailures int // default: 3

	// Window is the time window those failures must fall into.
	Window time.Duration // default: 10m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// LoadEnvFile loads a .env file if one exists. Real environment variables
// always win over file values.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env load failed", "error", err)
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Cascade: CascadeConfig{
			TierTimeout:            envDurationOr("TIERFETCH_TIER_TIMEOUT", 30*time.Second),
			PreferenceMinSuccesses: envIntOr("TIERFETCH_PREF_MIN_SUCCESSES", 2),
			BrowserDomains: envSliceOr("TIERFETCH_BROWSER_DOMAINS", []string{
				"twitter.com", "x.com", "instagram.com", "facebook.com",
				"linkedin.com", "tiktok.com",
			}),
		},
		Validation: ValidationConfig{
			MinContentLength:       envIntOr("TIERFETCH_MIN_CONTENT", 200),
			LoadingMarkerThreshold: envIntOr("TIERFETCH_LOADING_THRESHOLD", 500),
			StructureThreshold:     envIntOr("TIERFETCH_STRUCTURE_THRESHOLD", 1000),
		},
		Client: ClientConfig{
			Timeout:     envDurationOr("TIERFETCH_HTTP_TIMEOUT", 10*time.Second),
			DomainRPS:   envFloatOr("TIERFETCH_DOMAIN_RPS", 2.0),
			DomainBurst: envIntOr("TIERFETCH_DOMAIN_BURST", 4),
			Proxy:       os.Getenv("TIERFETCH_PROXY"),
		},
		Browser: BrowserConfig{
			Enabled:   envBoolOr("TIERFETCH_BROWSER_ENABLED", true),
			Headless:  envBoolOr("TIERFETCH_HEADLESS", true),
			NoSandbox: envBoolOr("TIERFETCH_NO_SANDBOX", false),
			Bin:       os.Getenv("TIERFETCH_BROWSER_BIN"),
		},
		Cache: CacheConfig{
			MaxEntries:        envIntOr("TIERFETCH_CACHE_MAX_ENTRIES", 500),
			BaseTTL:           envDurationOr("TIERFETCH_CACHE_BASE_TTL", 5*time.Minute),
			MinTTL:            envDurationOr("TIERFETCH_CACHE_MIN_TTL", 30*time.Second),
			MaxTTL:            envDurationOr("TIERFETCH_CACHE_MAX_TTL", 24*time.Hour),
			VolatilityMaxKeys: envIntOr("TIERFETCH_VOLATILITY_MAX_KEYS", 1000),
		},
		Failure: FailureConfig{
			MinFailures: envIntOr("TIERFETCH_ANTIPATTERN_MIN_FAILURES", 3),
			Window:      envDurationOr("TIERFETCH_ANTIPATTERN_WINDOW", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("TIERFETCH_LOG_LEVEL", "info"),
			Format: envOr("TIERFETCH_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
