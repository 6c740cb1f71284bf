package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	// Delay is the unconditional pause before every request. It is the only
	// backpressure mechanism; keep it at or above the target's robots.txt
	// crawl-delay.
	Delay     time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Fetcher is a polite HTTP client producing parsed documents. One instance
// owns one underlying client, so connections are reused across all fetches
// of a scrape run.
type Fetcher struct {
	client  *http.Client
	delay   time.Duration
	headers map[string]string
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		delay:  cfg.Delay,
		headers: map[string]string{
			"User-Agent":                cfg.UserAgent,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":           "sr-RS,sr;q=0.9,en-US;q=0.8,en;q=0.7",
			"DNT":                       "1",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
		},
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch waits out the crawl delay, then GETs the URL and parses the body.
// Failures are logged and returned; callers drop the page and move on rather
// than aborting the site run.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("fetch failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("fetch returned non-2xx", "url", url, "status", resp.StatusCode)
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	return doc, nil
}
