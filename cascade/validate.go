package cascade

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/tierfetch/config"
	"github.com/use-agent/tierfetch/tier"
	"golang.org/x/net/html"
)

// Loading markers: skeleton screens, spinners, and empty SPA root
// containers all mean the page has not produced its content yet.
var loadingSelectors = compileSelectors(
	`[class*="skeleton"]`,
	`[class*="spinner"]`,
	`[class*="loading"]`,
	`[aria-busy="true"]`,
)

// Structural markers: a real content page carries at least one of these.
var structuralSelectors = compileSelectors(
	"h1", "h2", "h3", "article", "main", "p",
)

var rootSelectors = compileSelectors("#root", "#app", "[data-reactroot]")

// Validator judges whether a tier's output is acceptable content or a
// soft rejection that must escalate like an error.
type Validator struct {
	cfg config.ValidationConfig
}

// NewValidator creates a Validator; zero thresholds get the defaults
// (200 / 500 / 1000 characters).
func NewValidator(cfg config.ValidationConfig) *Validator {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 200
	}
	if cfg.LoadingMarkerThreshold <= 0 {
		cfg.LoadingMarkerThreshold = 500
	}
	if cfg.StructureThreshold <= 0 {
		cfg.StructureThreshold = 1000
	}
	return &Validator{cfg: cfg}
}

// Validate runs the acceptance checks in order and returns the rejection
// reason for the first one that fails. minLen > 0 overrides the
// configured minimum content length for this call.
func (v *Validator) Validate(res *tier.ExtractResult, minLen int) (bool, string) {
	if minLen <= 0 {
		minLen = v.cfg.MinContentLength
	}

	text := strings.TrimSpace(res.Content.Text)
	// Thresholds count characters, not bytes, so multi-byte scripts are
	// judged by the same yardstick as ASCII.
	chars := utf8.RuneCountInString(text)
	if chars < minLen {
		return false, fmt.Sprintf("content too short: %d < %d chars", chars, minLen)
	}

	doc, err := html.Parse(strings.NewReader(res.HTML))
	if err != nil {
		// Unparseable markup with enough text passes; the text checks
		// above are the real gate.
		return true, ""
	}

	if chars < v.cfg.LoadingMarkerThreshold && hasLoadingMarker(doc) {
		return false, fmt.Sprintf("loading marker present with only %d chars", chars)
	}

	if chars < v.cfg.StructureThreshold && !matchesAny(doc, structuralSelectors) {
		return false, fmt.Sprintf("no structural markers with only %d chars", chars)
	}

	return true, ""
}

func hasLoadingMarker(doc *html.Node) bool {
	if matchesAny(doc, loadingSelectors) {
		return true
	}
	// An empty root container is a loading state even without a spinner.
	for _, sel := range rootSelectors {
		for _, node := range cascadia.QueryAll(doc, sel) {
			if strings.TrimSpace(nodeText(node)) == "" {
				return true
			}
		}
	}
	return false
}

func matchesAny(doc *html.Node, selectors []cascadia.Sel) bool {
	for _, sel := range selectors {
		if cascadia.Query(doc, sel) != nil {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// compileSelectors parses CSS selectors ahead of time, skipping any that
// fail to parse rather than failing hard.
func compileSelectors(sources ...string) []cascadia.Sel {
	out := make([]cascadia.Sel, 0, len(sources))
	for _, src := range sources {
		sel, err := cascadia.Parse(src)
		if err != nil {
			slog.Warn("validate: skipping malformed selector", "selector", src, "error", err)
			continue
		}
		out = append(out, sel)
	}
	return out
}
