// Package scraper implements the incremental crawl of a "load more" blog
// listing: a browser-backed renderer, per-card extraction, pagination
// driving, and the crawl loop that ties them together for one target date.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Renderer drives one browser tab over the listing page. A renderer is
// owned by a single crawl; it is not safe for concurrent use.
type Renderer interface {
	// Navigate loads the URL, honoring the renderer's navigation timeout.
	Navigate(ctx context.Context, url string) error

	// OuterHTML returns the full rendered document markup.
	OuterHTML(ctx context.Context) (string, error)

	// Count returns how many elements currently match the selector.
	Count(ctx context.Context, selector string) (int, error)

	// WaitVisible blocks until the selector has a visible match or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// WaitCountAbove blocks until more than count elements match the
	// selector, reporting false on timeout.
	WaitCountAbove(ctx context.Context, selector string, count int, timeout time.Duration) (bool, error)

	// Exists reports whether any element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Interactable reports whether the first match is visible and enabled.
	Interactable(ctx context.Context, selector string) (bool, error)

	// Click scrolls the first match into view and clicks it.
	Click(ctx context.Context, selector string) error
}

// userAgent and extraHeaders present the session as a regular desktop
// browser. The listing serves an empty shell to clients it considers bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var extraHeaders = network.Headers{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Accept-Encoding":           "gzip, deflate, br",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}

// DefaultNavTimeout bounds page navigation.
const DefaultNavTimeout = 60 * time.Second

// ChromeRenderer implements Renderer over a headless Chromium process owned
// for the duration of one crawl.
type ChromeRenderer struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
}

// NewChromeRenderer launches a headless browser session. Close must be
// called on every exit path; a setup failure cleans up after itself before
// returning.
func NewChromeRenderer(parent context.Context, navTimeout time.Duration) (*ChromeRenderer, error) {
	if navTimeout <= 0 {
		navTimeout = DefaultNavTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("single-process", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-domain-reliability", true),
		chromedp.Flag("disable-features", "AudioServiceOutOfProcess"),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-pings", true),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.WindowSize(1280, 1696),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	r := &ChromeRenderer{
		ctx:         browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		navTimeout:  navTimeout,
	}

	// Starting the browser and installing headers is the first real work;
	// failure here is an initialization failure, not a navigation one.
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders),
	); err != nil {
		r.Close()
		return nil, &ScrapeError{Kind: FailureInit, Err: err}
	}

	log.Info().Msg("Browser initialized")
	return r, nil
}

// Close releases the browser process and its allocator. Safe to call more
// than once.
func (r *ChromeRenderer) Close() {
	r.cancelCtx()
	r.cancelAlloc()
}

// Navigate implements Renderer.
func (r *ChromeRenderer) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(r.ctx, r.navTimeout)
	defer cancel()

	log.Info().Str("url", url).Msg("Navigating")
	if err := chromedp.Run(tctx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &ScrapeError{Kind: FailureNavigation, URL: url, Err: fmt.Errorf("navigation timeout after %v", r.navTimeout)}
		}
		return &ScrapeError{Kind: FailureNavigation, URL: url, Err: err}
	}
	return nil
}

// OuterHTML implements Renderer.
func (r *ChromeRenderer) OuterHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var html string
	if err := chromedp.Run(r.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

// Count implements Renderer.
func (r *ChromeRenderer) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int
	expr := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("failed to count %q: %w", selector, err)
	}
	return n, nil
}

// WaitVisible implements Renderer.
func (r *ChromeRenderer) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	return chromedp.Run(tctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitCountAbove implements Renderer.
func (r *ChromeRenderer) WaitCountAbove(ctx context.Context, selector string, count int, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	expr := fmt.Sprintf("document.querySelectorAll(%q).length > %d", selector, count)
	var reached bool
	err := chromedp.Run(r.ctx, chromedp.Poll(expr, &reached, chromedp.WithPollingTimeout(timeout)))
	if err != nil {
		if errors.Is(err, chromedp.ErrPollingTimeout) {
			return false, nil
		}
		return false, fmt.Errorf("failed waiting for %q count above %d: %w", selector, count, err)
	}
	return reached, nil
}

// Exists implements Renderer.
func (r *ChromeRenderer) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var present bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &present)); err != nil {
		return false, fmt.Errorf("failed to probe %q: %w", selector, err)
	}
	return present, nil
}

// Interactable implements Renderer.
func (r *ChromeRenderer) Interactable(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	expr := fmt.Sprintf(`(function() {
		const el = document.querySelector(%q);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		const visible = el.offsetWidth > 0 && el.offsetHeight > 0 && style.visibility !== "hidden";
		return visible && !el.disabled;
	})()`, selector)

	var ok bool
	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, fmt.Errorf("failed to inspect %q: %w", selector, err)
	}
	return ok, nil
}

// Click implements Renderer. The pre-click pause lets the listing settle
// after scrolling; clicking mid-scroll occasionally misses the control.
func (r *ChromeRenderer) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return chromedp.Run(r.ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}
