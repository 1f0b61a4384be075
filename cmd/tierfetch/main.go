package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/use-agent/tierfetch/cache"
	"github.com/use-agent/tierfetch/cascade"
	"github.com/use-agent/tierfetch/config"
	"github.com/use-agent/tierfetch/failure"
	"github.com/use-agent/tierfetch/models"
	"github.com/use-agent/tierfetch/tier"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tierfetch <url> [url...]")
		os.Exit(2)
	}

	// ── 1. Load configuration ───────────────────────────────────────
	config.LoadEnvFile()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("tierfetch starting", "urls", len(os.Args)-1, "browser", cfg.Browser.Enabled)

	// ── 3. Build the tier strategies ────────────────────────────────
	client := tier.NewClient(tier.ClientOptions{
		Timeout:     cfg.Client.Timeout,
		DomainRPS:   cfg.Client.DomainRPS,
		DomainBurst: cfg.Client.DomainBurst,
		Proxy:       cfg.Client.Proxy,
	})

	strategies := []tier.Strategy{
		tier.NewStructural(client),
		tier.NewLightweightScript(client),
	}
	if cfg.Browser.Enabled {
		fullRender, err := tier.NewFullRender(tier.BrowserOptions{
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
			Bin:       cfg.Browser.Bin,
			Proxy:     cfg.Client.Proxy,
		})
		if err != nil {
			slog.Warn("full-render tier unavailable, continuing without it", "error", err)
		} else {
			defer fullRender.Close()
			strategies = append(strategies, fullRender)
		}
	}

	// ── 4. Wire controller, cache, failure tracking ─────────────────
	controller := cascade.NewController(strategies, cascade.NewPreferences(), cfg.Cascade, cfg.Validation)

	contentCache := cache.NewContentCache(cache.New(cache.Options{
		MaxEntries:        cfg.Cache.MaxEntries,
		BaseTTL:           cfg.Cache.BaseTTL,
		MinTTL:            cfg.Cache.MinTTL,
		MaxTTL:            cfg.Cache.MaxTTL,
		VolatilityMaxKeys: cfg.Cache.VolatilityMaxKeys,
	}))

	registry := failure.NewRegistry(cfg.Failure.MinFailures, cfg.Failure.Window)
	failures := failure.NewLog()

	// ── 5. Fetch each URL ───────────────────────────────────────────
	exitCode := 0
	for _, rawURL := range os.Args[1:] {
		if err := fetchOne(controller, contentCache, registry, failures, cfg, rawURL); err != nil {
			slog.Error("fetch failed", "url", rawURL, "error", err)
			exitCode = 1
		}
	}

	// ── 6. Report stats ─────────────────────────────────────────────
	stats := controller.Stats()
	slog.Info("tierfetch done",
		"domains", stats.Domains,
		"byTier", stats.DomainsByTier,
		"cacheHitRate", contentCache.GetStats().HitRate,
	)
	os.Exit(exitCode)
}

func fetchOne(
	controller *cascade.Controller,
	contentCache *cache.ContentCache,
	registry *failure.Registry,
	failures *failure.Log,
	cfg *config.Config,
	rawURL string,
) error {
	// Suppression is checked before the cascade ever runs: a domain that
	// is reliably failing should not burn tier budget.
	if matched := registry.Match(rawURL); len(matched) > 0 {
		ap := matched[0]
		registry.Update(ap.ID)
		return fmt.Errorf("%s: %s (%s)", models.ErrCodeSuppressed, ap.Reason, ap.RecommendedAction)
	}

	if v, ok := contentCache.Get(rawURL); ok {
		if cached, isResult := v.(*models.TieredFetchResult); isResult {
			slog.Info("cache hit", "url", rawURL)
			fmt.Println(cached.Content.Markdown)
			return nil
		}
	}

	began := time.Now()
	result, err := controller.Fetch(context.Background(), rawURL, models.FetchOptions{})
	if err != nil {
		recordFailure(registry, failures, cfg, rawURL, err, time.Since(began))
		return err
	}

	decision, changed := contentCache.SetContent(rawURL, result, []byte(result.Content.Text), cache.TTLOptions{
		CacheControl: result.CacheControl,
	})
	slog.Debug("cached",
		"url", rawURL, "ttl", decision.TTL,
		"reason", decision.Reason, "changed", changed,
	)

	fmt.Println(result.Content.Markdown)
	return nil
}

// recordFailure classifies the cascade failure, logs it against the
// domain, and creates an anti-pattern once the domain accumulated enough
// same-category evidence. The failure log is keyed by domain so evidence
// never aggregates across unrelated sites.
func recordFailure(
	registry *failure.Registry,
	failures *failure.Log,
	cfg *config.Config,
	rawURL string,
	err error,
	elapsed time.Duration,
) {
	domain := hostOf(rawURL)

	status := 0
	var httpErr *tier.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.StatusCode
	}

	message := err.Error()
	var allTiers *models.AllTiersError
	if errors.As(err, &allTiers) {
		message = allTiers.LastReason()
	}

	cls := failure.Classify(status, message, elapsed)
	failures.Record(failure.FailureRecord{
		Timestamp:    time.Now(),
		Category:     cls.Category,
		StatusCode:   status,
		Message:      message,
		Domain:       domain,
		URL:          rawURL,
		PatternID:    domain,
		ResponseTime: elapsed,
	})

	if cls.ShouldCreateAntiPattern {
		recent := failures.Recent(domain)
		if len(recent) >= cfg.Failure.MinFailures {
			if ap, created := registry.Create(recent); created {
				slog.Warn("domain suppressed",
					"domain", ap.Domains, "category", ap.Category, "until", ap.ExpiresAt,
				)
			}
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}
