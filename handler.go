package blogwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Request is the invocation payload shared by both entry points. When
// TargetDate is empty the handlers default to the previous calendar day.
type Request struct {
	TargetDate string `json:"target_date,omitempty"`
}

// Response is the invocation result: an HTTP-style status code and a JSON
// body. The only codes produced are 200 and 500.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Crawler discovers every post published on the target date, skipping any
// whose URL already appears in existing.
type Crawler interface {
	PostsForDate(ctx context.Context, targetDate string, existing []PostRecord) ([]PostRecord, error)
}

// CategorizeStrategy assigns categories (and possibly summaries) to a set of
// posts, returning the updated records and the distinct categories used.
type CategorizeStrategy interface {
	Categorize(ctx context.Context, posts []PostRecord) ([]PostRecord, []string, error)
}

// ScrapeHandler runs one crawl for a target date and persists the results.
type ScrapeHandler struct {
	Posts   PostStore
	Crawler Crawler
}

// Handle executes the scrape operation. Finding no posts for the date is a
// success; any failure below this point becomes a 500 response rather than
// escaping the invocation boundary.
func (h *ScrapeHandler) Handle(ctx context.Context, req Request) (resp Response) {
	defer recoverToResponse(&resp)

	date := req.TargetDate
	if date == "" {
		date = PreviousDate(time.Now())
		log.Info().Str("date", date).Msg("No target date provided, using previous date")
	}

	existing, err := h.Posts.GetPostsByDate(ctx, date)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read existing posts: %w", err))
	}
	if len(existing) > 0 {
		log.Info().Int("count", len(existing)).Str("date", date).Msg("Found existing posts for target date")
		return okResponse(map[string]any{
			"message": fmt.Sprintf("Found %d existing posts for the target date: %s", len(existing), date),
			"posts":   existing,
		})
	}

	posts, err := h.Crawler.PostsForDate(ctx, date, existing)
	if err != nil {
		return errorResponse(fmt.Errorf("error scraping blog: %w", err))
	}
	if len(posts) == 0 {
		log.Warn().Str("date", date).Msg("No blog posts found for target date")
		return okResponse(map[string]any{
			"message": fmt.Sprintf("No blog posts found for the target date: %s", date),
		})
	}

	if err := h.Posts.BatchUpsertPosts(ctx, posts); err != nil {
		return errorResponse(fmt.Errorf("failed to save posts: %w", err))
	}

	return okResponse(map[string]any{
		"message": fmt.Sprintf("Successfully scraped %d blog posts", len(posts)),
		"posts":   posts,
	})
}

// CategorizeHandler assigns categories and summaries to the unprocessed
// posts of a target date using the configured strategy.
type CategorizeHandler struct {
	Posts    PostStore
	History  CategoryHistoryStore
	Strategy CategorizeStrategy
}

// Handle executes the categorization operation for one date.
func (h *CategorizeHandler) Handle(ctx context.Context, req Request) (resp Response) {
	defer recoverToResponse(&resp)

	date := req.TargetDate
	if date == "" {
		date = PreviousDate(time.Now())
		log.Info().Str("date", date).Msg("No target date provided, using previous date")
	}

	posts, err := h.Posts.GetUnprocessedPostsByDate(ctx, date)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read unprocessed posts: %w", err))
	}
	if len(posts) == 0 {
		return okResponse(map[string]any{
			"message": fmt.Sprintf("No unprocessed posts found for date %s", date),
		})
	}

	updated, categories, err := h.Strategy.Categorize(ctx, posts)
	if err != nil {
		return errorResponse(fmt.Errorf("error processing posts: %w", err))
	}

	if err := h.History.AppendCategoriesForDate(ctx, date, categories); err != nil {
		return errorResponse(fmt.Errorf("failed to save categories: %w", err))
	}
	if err := h.Posts.BatchUpsertPosts(ctx, updated); err != nil {
		return errorResponse(fmt.Errorf("failed to save posts: %w", err))
	}

	return okResponse(map[string]any{
		"posts":      updated,
		"categories": categories,
	})
}

// okResponse marshals a success body. A marshaling failure degrades to a 500
// instead of panicking.
func okResponse(body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to marshal response: %w", err))
	}
	return Response{StatusCode: http.StatusOK, Body: string(data)}
}

func errorResponse(err error) Response {
	log.Error().Err(err).Msg("Request failed")
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	return Response{StatusCode: http.StatusInternalServerError, Body: string(data)}
}

// recoverToResponse converts a panic below the handler into a 500 response
// so nothing escapes the invocation boundary.
func recoverToResponse(resp *Response) {
	if r := recover(); r != nil {
		*resp = errorResponse(fmt.Errorf("unexpected failure: %v", r))
	}
}
