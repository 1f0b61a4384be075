package tier

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps response bodies at 10 MB to prevent unbounded memory use.
const maxBody = 10 << 20

// HTTPError is returned for non-2xx or non-HTML responses so callers can
// classify the failure by status code.
type HTTPError struct {
	StatusCode  int
	URL         string
	ContentType string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tier: HTTP %d for %s (content-type: %s)", e.StatusCode, e.URL, e.ContentType)
}

// Page is what the shared client fetched.
type Page struct {
	HTML         string
	StatusCode   int
	FinalURL     string
	CacheControl string
}

// ClientOptions tune the shared HTTP client.
type ClientOptions struct {
	// Timeout is the default request deadline when the context has none.
	Timeout time.Duration

	// DomainRPS / DomainBurst drive the per-domain politeness limiter.
	DomainRPS   float64
	DomainBurst int

	// Proxy is an optional http/https proxy URL.
	Proxy string
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Client is the HTTP fetcher shared by the structural and
// lightweight-script tiers. It presents a Chrome TLS fingerprint with ALPN
// locked to http/1.1 and enforces a per-domain token-bucket rate so the
// cheap tiers stay polite even when cascades run concurrently.
// Safe for concurrent use.
type Client struct {
	http *http.Client
	opts ClientOptions

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// buildChromeH1Spec returns a fresh Chrome-like TLS ClientHello spec with
// ALPN forced to http/1.1 only, so the server never negotiates HTTP/2,
// which Go's http.Transport cannot frame over a utls connection. A new
// spec is built per connection: utls extension structs carry
// per-handshake state (GREASE ECH payloads, key shares), so a spec must
// never be shared across connections.
func buildChromeH1Spec() (tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return tls.ClientHelloSpec{}, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return spec, nil
}

// NewClient creates the shared tier HTTP client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.DomainRPS <= 0 {
		opts.DomainRPS = 2
	}
	if opts.DomainBurst <= 0 {
		opts.DomainBurst = 4
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			spec, err := buildChromeH1Spec()
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("tier: build tls spec: %w", err)
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("tier: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil &&
			(proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		opts:     opts,
		limiters: make(map[string]*limiterEntry),
	}
}

// Fetch retrieves the URL with browser-like headers after passing the
// domain's politeness limiter. Non-success statuses and non-HTML bodies
// return an *HTTPError so callers can escalate or classify.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Page, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	if err := c.limiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return nil, fmt.Errorf("tier: rate wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tier: build request: %w", err)
	}

	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tier: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("tier: read body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, ContentType: ct}
	}

	return &Page{
		HTML:         string(body),
		StatusCode:   resp.StatusCode,
		FinalURL:     resp.Request.URL.String(),
		CacheControl: resp.Header.Get("Cache-Control"),
	}, nil
}

// limiter returns the token bucket for a domain, creating it on first use.
// The map is pruned inline: entries idle past an hour are dropped whenever
// the map grows beyond 1024 domains.
func (c *Client) limiter(domain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.limiters) > 1024 {
		cutoff := time.Now().Add(-time.Hour)
		for d, e := range c.limiters {
			if e.lastSeen.Before(cutoff) {
				delete(c.limiters, d)
			}
		}
	}

	entry, ok := c.limiters[domain]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(c.opts.DomainRPS), c.opts.DomainBurst),
		}
		c.limiters[domain] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
