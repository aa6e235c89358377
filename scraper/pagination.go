package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// extendControlSelectors are tried most to least specific when looking for
// the "load more" control.
var extendControlSelectors = []string{
	"a.m-directories-more.m-directories-more-arrow.m-cards-light.m-active",
	"a.m-directories-more",
	"div.m-directories-more-container a",
	"div.m-directories-more-container button",
	"[role='button'][title*='More']",
}

// extendControlProbe is the selector used to check whether the control is
// still on the page after a click.
const extendControlProbe = "a.m-directories-more"

// ErrControlNotInteractable indicates the extend control was found but is
// disabled or hidden; the caller treats this as "cannot continue".
var ErrControlNotInteractable = errors.New("extend control is not interactable")

// PaginationDriver locates the listing's extend control and confirms that
// invoking it actually produced more cards.
type PaginationDriver struct {
	r Renderer

	// Wait policy. "New content finished loading" is not atomically
	// observable, so confirmation falls through several strategies.
	countWait   time.Duration
	settleWait  time.Duration
	controlWait time.Duration
}

// NewPaginationDriver creates a driver with the fixed wait policy.
func NewPaginationDriver(r Renderer) *PaginationDriver {
	return &PaginationDriver{
		r:           r,
		countWait:   15 * time.Second,
		settleWait:  5 * time.Second,
		controlWait: 3 * time.Second,
	}
}

// FindExtendControl returns the first candidate selector with a match, or
// false when the listing offers no way to load more.
func (d *PaginationDriver) FindExtendControl(ctx context.Context) (string, bool) {
	for _, selector := range extendControlSelectors {
		present, err := d.r.Exists(ctx, selector)
		if err != nil {
			log.Debug().Err(err).Str("selector", selector).Msg("Extend control probe failed")
			continue
		}
		if present {
			log.Debug().Str("selector", selector).Msg("Found extend control")
			return selector, true
		}
	}
	log.Debug().Msg("No extend control found")
	return "", false
}

// Extend invokes the control after verifying it can be interacted with.
func (d *PaginationDriver) Extend(ctx context.Context, selector string) error {
	ok, err := d.r.Interactable(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Str("selector", selector).Msg("Extend control not clickable")
		return ErrControlNotInteractable
	}

	log.Info().Msg("Clicking extend control")
	return d.r.Click(ctx, selector)
}

// ConfirmExtension reports whether new cards appeared after the control was
// invoked. It tries, in order: waiting for the card count to exceed
// previousCount, a fixed settle wait followed by a re-sample, a further
// fixed wait followed by a control-absence check (absence means no more
// pages), and a final count re-sample.
func (d *PaginationDriver) ConfirmExtension(ctx context.Context, previousCount int) bool {
	log.Info().Msg("Waiting for new content to load")

	loaded, err := d.r.WaitCountAbove(ctx, CardSelector, previousCount, d.countWait)
	if err != nil {
		log.Debug().Err(err).Msg("Count wait failed")
	}
	if loaded {
		log.Info().Msg("New posts loaded (count increased)")
		return true
	}

	if !sleepCtx(ctx, d.settleWait) {
		return false
	}
	if n, err := d.r.Count(ctx, CardSelector); err == nil && n > previousCount {
		log.Info().Int("previous", previousCount).Int("current", n).Msg("New posts loaded after settle wait")
		return true
	}

	if !sleepCtx(ctx, d.controlWait) {
		return false
	}
	present, err := d.r.Exists(ctx, extendControlProbe)
	if err == nil && !present {
		log.Info().Msg("Extend control disappeared, assuming end of content")
		return false
	}

	if n, err := d.r.Count(ctx, CardSelector); err == nil && n > previousCount {
		log.Info().Int("previous", previousCount).Int("current", n).Msg("Content loaded despite timeout")
		return true
	}

	log.Warn().Msg("Failed to load new content")
	return false
}

// sleepCtx pauses for d, reporting false if the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
