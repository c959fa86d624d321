package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// Fetcher abstracts how pages are fetched so adapters can be tested without network calls.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches static HTML pages over HTTP.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewLimiter returns a limiter allowing rps requests per second, or nil when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// NewHTTPFetcher creates a fetcher with a bounded timeout. A nil limiter disables pacing.
func NewHTTPFetcher(timeout time.Duration, userAgent string, limiter *rate.Limiter) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		limiter:   limiter,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en;q=0.6")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// BrowserFetcher renders pages in headless Chrome for sources that build their
// DOM with JavaScript.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	settle   time.Duration
}

// NewBrowserFetcher starts a shared browser allocator. Each Fetch opens its own tab.
func NewBrowserFetcher(timeout time.Duration, userAgent string) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		allocCtx: allocCtx,
		cancel:   cancel,
		timeout:  timeout,
		settle:   2 * time.Second,
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// The tab hangs off the allocator, so caller cancellation has to be forwarded.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	return io.NopCloser(strings.NewReader(html)), nil
}

// Close releases browser resources.
func (b *BrowserFetcher) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}
