package tier

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"
)

// StructuralStrategy is the cheapest tier: one plain HTTP fetch, then
// mining of whatever the page already carries: embedded framework data,
// JSON-LD structured data, and the static HTML body itself.
type StructuralStrategy struct {
	client *Client
	conv   *converter.Converter
}

// NewStructural creates the structural tier over the shared client.
func NewStructural(client *Client) *StructuralStrategy {
	return &StructuralStrategy{
		client: client,
		conv:   newMarkdownConverter(),
	}
}

func (s *StructuralStrategy) Name() Tier { return Structural }

func (s *StructuralStrategy) Extract(ctx context.Context, url string, opts ExtractOptions) (*ExtractResult, error) {
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

	flags := DetectionFlags{StaticContent: true}
	if doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(page.HTML)); docErr == nil {
		content.Structured = mineStructuredData(doc)
		flags = detectFlags(doc, content.Text)
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

// mineStructuredData collects JSON-LD blocks and Next.js page data from
// the document. Malformed blocks are skipped. Returns nil when the page
// embeds nothing usable.
func mineStructuredData(doc *goquery.Document) any {
	var blocks []any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := decodeJSON(s.Text()); ok {
			blocks = append(blocks, v)
		}
	})

	if next := doc.Find("script#__NEXT_DATA__").First(); next.Length() > 0 {
		if v, ok := decodeJSON(next.Text()); ok {
			blocks = append(blocks, map[string]any{"__NEXT_DATA__": v})
		}
	}

	switch len(blocks) {
	case 0:
		return nil
	case 1:
		return blocks[0]
	default:
		return blocks
	}
}

// decodeJSON leniently parses a JSON snippet via gson and reports whether
// it carried an object or array.
func decodeJSON(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (!strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[")) {
		return nil, false
	}
	v := gson.NewFrom(text).Val()
	if v == nil {
		return nil, false
	}
	return v, true
}
