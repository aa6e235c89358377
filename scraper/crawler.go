package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// DefaultMaxLoads caps how many page extensions one crawl may perform.
const DefaultMaxLoads = 50

// cardWaitTimeout bounds the wait for the first card of a scan. Unlike
// per-card extraction failures, exceeding it is fatal to the crawl.
const cardWaitTimeout = 10 * time.Second

// Config holds crawl parameters.
type Config struct {
	ListingURL string
	MaxLoads   int
	NavTimeout time.Duration
}

// Crawler walks the listing page for one target date. It owns the crawl
// state machine: scan the visible cards, collect matches, and either extend
// the page or stop. Termination is checked in a fixed priority order each
// cycle: the trailing card crossing the date boundary, a missing extend
// control, a failed extension, and finally the load cap.
type Crawler struct {
	renderer Renderer
	driver   *PaginationDriver
	cfg      Config
}

// NewCrawler creates a crawler over an already-initialized renderer.
func NewCrawler(r Renderer, cfg Config) *Crawler {
	if cfg.MaxLoads <= 0 {
		cfg.MaxLoads = DefaultMaxLoads
	}
	return &Crawler{
		renderer: r,
		driver:   NewPaginationDriver(r),
		cfg:      cfg,
	}
}

// scanResult is what one pass over the currently visible cards produced.
type scanResult struct {
	// matching holds newly discovered posts for the target date, in DOM
	// order.
	matching []blogwatch.PostRecord
	// lastMatchesTarget is true iff the last rendered card carries the
	// target date. The listing is date-descending, so a false value means
	// nothing further can match.
	lastMatchesTarget bool
	// total is the number of cards currently rendered.
	total int
}

// PostsForDate collects every post published on targetDate, deduplicating
// against existing and against earlier discoveries in the same crawl. The
// complete set is returned at the end; there is no partial output.
func (c *Crawler) PostsForDate(ctx context.Context, targetDate string, existing []blogwatch.PostRecord) ([]blogwatch.PostRecord, error) {
	log.Info().Str("date", targetDate).Str("url", c.cfg.ListingURL).Msg("Starting blog crawl")

	if err := c.renderer.Navigate(ctx, c.cfg.ListingURL); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(existing))
	for _, post := range existing {
		seen[post.URL] = struct{}{}
	}

	var collected []blogwatch.PostRecord
	loads := 0

	for loads < c.cfg.MaxLoads {
		log.Info().Int("cycle", loads+1).Msg("Scanning listing")

		scan, err := c.scanPage(ctx, targetDate, seen)
		if err != nil {
			return nil, err
		}
		collected = append(collected, scan.matching...)
		log.Info().
			Int("new", len(scan.matching)).
			Int("total", len(collected)).
			Str("date", targetDate).
			Msg("Scan complete")

		if !scan.lastMatchesTarget {
			log.Info().Msg("Last card is past the target date, stopping")
			break
		}

		selector, found := c.driver.FindExtendControl(ctx)
		if !found {
			log.Info().Msg("No extend control found, stopping")
			break
		}

		if err := c.driver.Extend(ctx, selector); err != nil {
			log.Warn().Err(err).Msg("Could not extend listing, stopping")
			break
		}
		if !c.driver.ConfirmExtension(ctx, scan.total) {
			log.Info().Msg("Listing did not extend, stopping")
			break
		}

		loads++
	}

	if loads >= c.cfg.MaxLoads {
		log.Warn().Int("maxLoads", c.cfg.MaxLoads).Msg("Reached maximum load limit")
	}

	log.Info().Int("count", len(collected)).Msg("Crawl completed")
	return collected, nil
}

// scanPage extracts every visible card, collecting target-date posts whose
// URLs are new. Malformed cards are skipped; the listing failing to render
// any card at all is fatal.
func (c *Crawler) scanPage(ctx context.Context, targetDate string, seen map[string]struct{}) (scanResult, error) {
	if err := c.renderer.WaitVisible(ctx, CardSelector, cardWaitTimeout); err != nil {
		return scanResult{}, &ScrapeError{Kind: FailureListingLoad, Err: err}
	}

	html, err := c.renderer.OuterHTML(ctx)
	if err != nil {
		return scanResult{}, &ScrapeError{Kind: FailureListingLoad, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scanResult{}, &ScrapeError{Kind: FailureListingLoad, Err: err}
	}

	cards := doc.Find(CardSelector)
	total := cards.Length()
	log.Info().Int("cards", total).Msg("Processing visible cards")

	var result scanResult
	result.total = total

	cards.Each(func(i int, card *goquery.Selection) {
		post, ok := ExtractCard(card)
		if !ok {
			return
		}

		if post.PublishedDate == targetDate {
			if _, dup := seen[post.URL]; !dup {
				seen[post.URL] = struct{}{}
				result.matching = append(result.matching, post)
				log.Info().Str("title", post.Title).Msg("Found matching post")
			}
		}

		if i == total-1 && post.PublishedDate == targetDate {
			result.lastMatchesTarget = true
		}
	})

	return result, nil
}

// Service runs crawls end to end, creating and releasing a browser session
// per call. It satisfies the Crawler contract the handlers consume.
type Service struct {
	cfg Config
}

// NewService creates a crawl service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// PostsForDate launches a renderer, runs one crawl, and releases the
// browser on every exit path.
func (s *Service) PostsForDate(ctx context.Context, targetDate string, existing []blogwatch.PostRecord) ([]blogwatch.PostRecord, error) {
	renderer, err := NewChromeRenderer(ctx, s.cfg.NavTimeout)
	if err != nil {
		return nil, err
	}
	defer renderer.Close()

	return NewCrawler(renderer, s.cfg).PostsForDate(ctx, targetDate, existing)
}
