package tier

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// newMarkdownConverter creates a reusable, goroutine-safe converter:
// base plugin strips script/style/head noise, commonmark renders standard
// Markdown, and the table plugin preserves tabular structure with minimal
// cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// deriveContent distills title/text/markdown from raw markup using the
// Mozilla Readability algorithm, falling back to whole-document text when
// readability cannot locate a main body. It never fails: the worst case is
// raw text with an empty title.
func deriveContent(conv *converter.Converter, rawHTML, sourceURL string) Content {
	var article readability.Article

	parsedURL, err := nurl.Parse(sourceURL)
	if err == nil {
		article, err = readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	}
	if err != nil || len(strings.TrimSpace(article.TextContent)) == 0 {
		article = readability.Article{
			Content:     rawHTML,
			TextContent: documentText(rawHTML),
			Title:       extractTitle(rawHTML),
		}
	}
	if article.Title == "" {
		article.Title = extractTitle(rawHTML)
	}

	markdown, err := conv.ConvertString(article.Content, converter.WithDomain(sourceURL))
	if err != nil {
		slog.Warn("tier: markdown conversion failed, using plain text", "url", sourceURL, "error", err)
		markdown = article.TextContent
	}

	return Content{
		Title:    strings.TrimSpace(article.Title),
		Text:     strings.TrimSpace(article.TextContent),
		Markdown: strings.TrimSpace(markdown),
	}
}

// documentText extracts the visible text of a whole document via goquery.
func documentText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// extractTitle finds the first <title> element with the HTML tokenizer.
func extractTitle(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}

// detectFlags inspects markup shape: script-dominated documents and empty
// SPA root containers are the signals that cheap tiers will come up short.
func detectFlags(doc *goquery.Document, text string) DetectionFlags {
	var flags DetectionFlags

	scriptChars := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptChars += len(s.Text())
	})
	flags.JSHeavy = scriptChars > 4*len(text) && scriptChars > 2048

	emptyRoot := false
	doc.Find("#root, #app, [data-reactroot]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(strings.TrimSpace(s.Text())) == 0 {
			emptyRoot = true
			return false
		}
		return true
	})
	flags.NeedsFullRender = emptyRoot
	flags.StaticContent = !flags.JSHeavy && !emptyRoot && len(text) > 0

	return flags
}
