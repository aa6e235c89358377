package scraper

import "fmt"

// FailureKind distinguishes the fatal causes a crawl can fail with.
type FailureKind int

const (
	// FailureInit covers browser or session setup failures.
	FailureInit FailureKind = iota
	// FailureNavigation covers navigation timeouts and navigation errors.
	FailureNavigation
	// FailureListingLoad covers the listing never rendering its first card.
	FailureListingLoad
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureInit:
		return "initialization"
	case FailureNavigation:
		return "navigation"
	case FailureListingLoad:
		return "listing-load"
	default:
		return "unknown"
	}
}

// ScrapeError is a fatal crawl failure. Per-card extraction problems are
// never reported this way; they only skip the card.
type ScrapeError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *ScrapeError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s failure for %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}
