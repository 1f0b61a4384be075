package cache

import "strings"

// Category is the cache-behavior class a domain falls into.
type Category string

const (
	CategoryStaticGov       Category = "static-gov"
	CategoryStaticDocs      Category = "static-docs"
	CategoryStaticWiki      Category = "static-wiki"
	CategoryDynamicSocial   Category = "dynamic-social"
	CategoryDynamicNews     Category = "dynamic-news"
	CategoryDynamicCommerce Category = "dynamic-commerce"
	CategoryDefault         Category = "default"
)

// Multiplier is the TTL multiplier applied when no explicit caching
// headers are present. Static content lives longer, volatile content
// shorter.
func (c Category) Multiplier() float64 {
	switch c {
	case CategoryStaticGov:
		return 4
	case CategoryStaticDocs:
		return 3
	case CategoryStaticWiki:
		return 2
	case CategoryDynamicSocial:
		return 0.25
	case CategoryDynamicNews:
		return 0.5
	case CategoryDynamicCommerce:
		return 0.75
	default:
		return 1
	}
}

// domainRule maps a hostname predicate to a category. Rules are evaluated
// in order; the first match wins.
type domainRule struct {
	match    func(host string) bool
	category Category
}

var domainRules = []domainRule{
	{hostHasSuffix(".gov", ".mil"), CategoryStaticGov},
	{hostHasSuffix(".edu"), CategoryStaticDocs},
	{hostContains("docs.", "documentation.", "developer.", "devdocs"), CategoryStaticDocs},
	{hostContains("wiki"), CategoryStaticWiki},
	{hostIsOneOf(
		"twitter.com", "x.com", "facebook.com", "instagram.com",
		"reddit.com", "tiktok.com", "linkedin.com", "threads.net",
		"mastodon.social", "bsky.app",
	), CategoryDynamicSocial},
	{hostContains("news.", "cnn.com", "bbc.", "nytimes.com", "reuters.com",
		"theguardian.com", "washingtonpost.com", "bloomberg.com"), CategoryDynamicNews},
	{hostContains("amazon.", "ebay.", "etsy.com", "shop.", "store.",
		"aliexpress.", "walmart.com"), CategoryDynamicCommerce},
}

// ClassifyDomain maps a hostname to its cache category using the ordered
// rule table. Unmatched hosts get the default category.
func ClassifyDomain(host string) Category {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, r := range domainRules {
		if r.match(host) {
			return r.category
		}
	}
	return CategoryDefault
}

func hostHasSuffix(suffixes ...string) func(string) bool {
	return func(host string) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(host, s) {
				return true
			}
		}
		return false
	}
}

func hostContains(substrs ...string) func(string) bool {
	return func(host string) bool {
		for _, s := range substrs {
			if strings.Contains(host, s) {
				return true
			}
		}
		return false
	}
}

func hostIsOneOf(hosts ...string) func(string) bool {
	return func(host string) bool {
		for _, h := range hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
}
