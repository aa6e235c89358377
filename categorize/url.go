// Package categorize assigns topical categories and summaries to scraped
// posts, either through a deterministic URL rule or an asynchronous batch
// text-inference run.
package categorize

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// DefaultFallbackCategory is used when a post's URL does not live under the
// configured base prefix.
const DefaultFallbackCategory = "unknown"

// URLStrategy derives each post's category from the path segment following
// a base URL prefix. It is deterministic and synchronous.
type URLStrategy struct {
	baseURL  string
	fallback string
}

// NewURLStrategy creates the strategy. An empty baseURL means the prefix
// never matches and every post receives the fallback.
func NewURLStrategy(baseURL, fallback string) *URLStrategy {
	if fallback == "" {
		fallback = DefaultFallbackCategory
	}
	return &URLStrategy{baseURL: baseURL, fallback: fallback}
}

// Categorize implements the categorization strategy contract.
func (s *URLStrategy) Categorize(_ context.Context, posts []blogwatch.PostRecord) ([]blogwatch.PostRecord, []string, error) {
	log.Info().Int("posts", len(posts)).Msg("Extracting categories from URLs")

	used := make(map[string]struct{})
	updated := make([]blogwatch.PostRecord, 0, len(posts))

	for _, post := range posts {
		category := s.fallback
		if s.baseURL != "" && strings.HasPrefix(post.URL, s.baseURL) {
			rest := strings.TrimPrefix(post.URL, s.baseURL)
			if segment, _, _ := strings.Cut(rest, "/"); segment != "" {
				category = segment
			}
		}

		post.Category = []string{category}
		post.Processed = true
		used[category] = struct{}{}
		updated = append(updated, post)
	}

	categories := make([]string, 0, len(used))
	for category := range used {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return updated, categories, nil
}
