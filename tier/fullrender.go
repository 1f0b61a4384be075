package tier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/stealth"
)

// BrowserOptions configure the full-render tier's browser.
type BrowserOptions struct {
	Headless  bool
	NoSandbox bool
	Bin       string
	Proxy     string
}

// FullRenderStrategy is the most expensive tier: a real browser engine
// renders the page, including script-driven content the cheaper tiers
// cannot reach. Construct it only when a browser is actually available;
// the cascade skips this tier entirely otherwise.
type FullRenderStrategy struct {
	browser *rod.Browser
	conv    *converter.Converter
}

// NewFullRender launches a browser and returns the full-render tier.
// Callers must Close it on shutdown to avoid zombie browser processes.
func NewFullRender(opts BrowserOptions) (*FullRenderStrategy, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("fullrender: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("fullrender: connect browser: %w", err)
	}
	slog.Info("full-render browser launched", "controlURL", controlURL)

	return &FullRenderStrategy{
		browser: browser,
		conv:    newMarkdownConverter(),
	}, nil
}

func (s *FullRenderStrategy) Name() Tier { return FullRender }

func (s *FullRenderStrategy) Extract(ctx context.Context, url string, opts ExtractOptions) (*ExtractResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Stealth must be injected on page creation, before navigation, or the
	// evasions never take effect.
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("fullrender: create page: %w", err)
	}
	// Close with the original page reference so cleanup succeeds even
	// after the request context expired.
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("fullrender: page close failed", "error", closeErr)
		}
	}()

	p := page.Context(ctx)

	if len(opts.Headers) > 0 {
		kv := make([]string, 0, 2*len(opts.Headers))
		for k, v := range opts.Headers {
			kv = append(kv, k, v)
		}
		if _, err := p.SetExtraHeaders(kv); err != nil {
			return nil, fmt.Errorf("fullrender: set headers: %w", err)
		}
	}

	// The idle waiter must be armed before Navigate or in-flight requests
	// are missed and the wait returns instantly.
	waitIdle := p.WaitRequestIdle(800*time.Millisecond, nil, nil, nil)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("fullrender: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("fullrender: wait load: %w", err)
	}
	waitIdle()

	rendered, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("fullrender: read html: %w", err)
	}

	info, err := p.Info()
	finalURL := url
	if err == nil && info.URL != "" {
		finalURL = info.URL
	}

	content := deriveContent(s.conv, rendered, finalURL)

	flags := DetectionFlags{}
	if doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(rendered)); docErr == nil {
		content.Structured = mineStructuredData(doc)
		flags = detectFlags(doc, content.Text)
	}

	return &ExtractResult{
		HTML:     rendered,
		Content:  content,
		FinalURL: finalURL,
		// The renderer does not surface the navigation status; 200 is
		// assumed for a page that loaded.
		StatusCode: 200,
		Flags:      flags,
	}, nil
}

// Close kills the browser process.
func (s *FullRenderStrategy) Close() {
	s.browser.MustClose()
}
