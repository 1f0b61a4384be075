package tier

import (
	"context"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"
)

// Inline state assignments the hydrator understands, checked in order.
var statePatterns = []*regexp.Regexp{
	regexp.MustCompile(`window\.__INITIAL_STATE__\s*=\s*`),
	regexp.MustCompile(`window\.__PRELOADED_STATE__\s*=\s*`),
	regexp.MustCompile(`window\.__NUXT__\s*=\s*`),
	regexp.MustCompile(`window\.__APOLLO_STATE__\s*=\s*`),
}

// LightweightScriptStrategy sits between plain HTML and a real browser:
// it fetches over HTTP and hydrates the inline application state that
// client-rendered pages ship for their own bootstrapping, without ever
// executing script. Pages whose state lives behind XHR still need the
// full-render tier.
type LightweightScriptStrategy struct {
	client *Client
	conv   *converter.Converter
}

// NewLightweightScript creates the lightweight-script tier over the
// shared client.
func NewLightweightScript(client *Client) *LightweightScriptStrategy {
	return &LightweightScriptStrategy{
		client: client,
		conv:   newMarkdownConverter(),
	}
}

func (s *LightweightScriptStrategy) Name() Tier { return LightweightScript }

func (s *LightweightScriptStrategy) Extract(ctx context.Context, url string, opts ExtractOptions) (*ExtractResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	page, err := s.client.Fetch(ctx, url, opts.Headers)
	if err != nil {
		return nil, err
	}

	content := deriveContent(s.conv, page.HTML, page.FinalURL)

	flags := DetectionFlags{}
	var state any
	if doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(page.HTML)); docErr == nil {
		state = hydrateInlineState(doc)
		flags = detectFlags(doc, content.Text)
	}

	if state != nil {
		content.Structured = state
		// When the DOM is an empty shell, the hydrated state often holds
		// the real content; surface its text so validation can judge it.
		if len(content.Text) < opts.MinContentLength {
			if text := flattenStateText(state); len(text) > len(content.Text) {
				content.Text = text
			}
		}
	}

	return &ExtractResult{
		HTML:         page.HTML,
		Content:      content,
		FinalURL:     page.FinalURL,
		StatusCode:   page.StatusCode,
		CacheControl: page.CacheControl,
		Flags:        flags,
	}, nil
}

// hydrateInlineState scans inline scripts for known state assignments and
// decodes the first JSON object found. Also honors __NEXT_DATA__ since
// Next.js ships state in its own script tag.
func hydrateInlineState(doc *goquery.Document) any {
	if next := doc.Find("script#__NEXT_DATA__").First(); next.Length() > 0 {
		if v, ok := decodeJSON(next.Text()); ok {
			return v
		}
	}

	var state any
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, pat := range statePatterns {
			loc := pat.FindStringIndex(text)
			if loc == nil {
				continue
			}
			raw := extractBalancedJSON(text[loc[1]:])
			if raw == "" {
				continue
			}
			if v := gson.NewFrom(raw).Val(); v != nil {
				state = v
				return false
			}
		}
		return true
	})
	return state
}

// extractBalancedJSON returns the leading balanced {...} or [...] of s,
// tracking string literals so braces inside values don't end the scan.
func extractBalancedJSON(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	open := s[0]
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = inString
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closer:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// flattenStateText walks a hydrated state tree and joins its string
// leaves, skipping short tokens that are likely keys or enum values.
func flattenStateText(state any) string {
	var parts []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if len(val) >= 40 && !strings.HasPrefix(val, "http") {
				parts = append(parts, val)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(state)
	return strings.Join(parts, "\n")
}
