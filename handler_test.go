package blogwatch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, date string) time.Time {
	t.Helper()

	parsed, err := time.Parse(DateLayout, date)
	require.NoError(t, err)
	return parsed
}

// fakePostStore is an in-memory PostStore keyed by date.
type fakePostStore struct {
	byDate   map[string][]PostRecord
	readErr  error
	writeErr error
	upserted []PostRecord
}

func (f *fakePostStore) GetPostsByDate(_ context.Context, date string) ([]PostRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.byDate[date], nil
}

func (f *fakePostStore) GetUnprocessedPostsByDate(_ context.Context, date string) ([]PostRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	var pending []PostRecord
	for _, post := range f.byDate[date] {
		if !post.Processed {
			pending = append(pending, post)
		}
	}
	return pending, nil
}

func (f *fakePostStore) UpsertPost(_ context.Context, post *PostRecord) error {
	f.upserted = append(f.upserted, *post)
	return f.writeErr
}

func (f *fakePostStore) BatchUpsertPosts(_ context.Context, posts []PostRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.upserted = append(f.upserted, posts...)
	return nil
}

type fakeCrawler struct {
	posts  []PostRecord
	err    error
	calls  int
	gotDay string
}

func (f *fakeCrawler) PostsForDate(_ context.Context, targetDate string, _ []PostRecord) ([]PostRecord, error) {
	f.calls++
	f.gotDay = targetDate
	return f.posts, f.err
}

type fakeStrategy struct {
	updated    []PostRecord
	categories []string
	err        error
}

func (f *fakeStrategy) Categorize(_ context.Context, posts []PostRecord) ([]PostRecord, []string, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.updated, f.categories, nil
}

type fakeHistory struct {
	appended map[string][][]string
	err      error
}

func (f *fakeHistory) AppendCategoriesForDate(_ context.Context, date string, categories []string) error {
	if f.err != nil {
		return f.err
	}
	if f.appended == nil {
		f.appended = make(map[string][][]string)
	}
	f.appended[date] = append(f.appended[date], categories)
	return nil
}

func TestScrapeHandler_ExistingPostsShortCircuit(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{
		"06/19/2025": {{ID: "p1", Title: "Already here", PublishedDate: "06/19/2025"}},
	}}
	crawler := &fakeCrawler{}
	h := &ScrapeHandler{Posts: store, Crawler: crawler}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "existing posts")
	assert.Zero(t, crawler.calls, "crawl should not run when posts already exist")
	assert.Empty(t, store.upserted)
}

func TestScrapeHandler_SavesScrapedPosts(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{}}
	crawler := &fakeCrawler{posts: []PostRecord{
		{Title: "One", URL: "https://aws.amazon.com/blogs/storage/one/", PublishedDate: "06/19/2025"},
		{Title: "Two", URL: "https://aws.amazon.com/blogs/compute/two/", PublishedDate: "06/19/2025"},
	}}
	h := &ScrapeHandler{Posts: store, Crawler: crawler}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "Successfully scraped 2 blog posts")
	assert.Equal(t, "06/19/2025", crawler.gotDay)
	assert.Len(t, store.upserted, 2)
}

func TestScrapeHandler_NoPostsIsSuccess(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{}}
	h := &ScrapeHandler{Posts: store, Crawler: &fakeCrawler{}}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "No blog posts found")
	assert.Empty(t, store.upserted)
}

func TestScrapeHandler_CrawlerErrorIs500(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{}}
	h := &ScrapeHandler{
		Posts:   store,
		Crawler: &fakeCrawler{err: errors.New("listing never loaded")},
	}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "listing never loaded")
	assert.Empty(t, store.upserted)
}

func TestScrapeHandler_StoreReadErrorIs500(t *testing.T) {
	store := &fakePostStore{readErr: errors.New("table unavailable")}
	crawler := &fakeCrawler{}
	h := &ScrapeHandler{Posts: store, Crawler: crawler}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, crawler.calls)
}

func TestScrapeHandler_DefaultsToPreviousDate(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{}}
	crawler := &fakeCrawler{}
	h := &ScrapeHandler{Posts: store, Crawler: crawler}

	resp := h.Handle(context.Background(), Request{})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, crawler.gotDay)
	assert.Regexp(t, `^\d{2}/\d{2}/\d{4}$`, crawler.gotDay)
}

func TestCategorizeHandler_ProcessesAndRecordsHistory(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{
		"06/19/2025": {
			{ID: "p1", Title: "Pending", PublishedDate: "06/19/2025"},
			{ID: "p2", Title: "Done", PublishedDate: "06/19/2025", Processed: true},
		},
	}}
	history := &fakeHistory{}
	strategy := &fakeStrategy{
		updated: []PostRecord{
			{ID: "p1", Title: "Pending", Category: []string{"Storage"}, Processed: true},
		},
		categories: []string{"Storage"},
	}
	h := &CategorizeHandler{Posts: store, History: history, Strategy: strategy}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.upserted, 1)
	assert.True(t, store.upserted[0].Processed)
	require.Len(t, history.appended["06/19/2025"], 1)
	assert.Equal(t, []string{"Storage"}, history.appended["06/19/2025"][0])
}

func TestCategorizeHandler_NothingPendingIsSuccess(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{
		"06/19/2025": {{ID: "p1", Processed: true}},
	}}
	history := &fakeHistory{}
	h := &CategorizeHandler{Posts: store, History: history, Strategy: &fakeStrategy{}}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "No unprocessed posts")
	assert.Empty(t, history.appended)
}

func TestCategorizeHandler_StrategyErrorIs500(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{
		"06/19/2025": {{ID: "p1"}},
	}}
	history := &fakeHistory{}
	h := &CategorizeHandler{
		Posts:    store,
		History:  history,
		Strategy: &fakeStrategy{err: errors.New("batch inference did not complete")},
	}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, history.appended, "no history is written on failure")
	assert.Empty(t, store.upserted, "no posts are written on failure")
}

func TestCategorizeHandler_HistoryWriteErrorIs500(t *testing.T) {
	store := &fakePostStore{byDate: map[string][]PostRecord{
		"06/19/2025": {{ID: "p1"}},
	}}
	h := &CategorizeHandler{
		Posts:    store,
		History:  &fakeHistory{err: errors.New("history table unavailable")},
		Strategy: &fakeStrategy{updated: []PostRecord{{ID: "p1", Processed: true}}, categories: []string{"Storage"}},
	}

	resp := h.Handle(context.Background(), Request{TargetDate: "06/19/2025"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, store.upserted)
}

func TestPreviousDate(t *testing.T) {
	now := mustParse(t, "06/20/2025")
	assert.Equal(t, "06/19/2025", PreviousDate(now))

	// Month and year boundaries roll over.
	assert.Equal(t, "12/31/2024", PreviousDate(mustParse(t, "01/01/2025")))
	assert.Equal(t, "02/29/2024", PreviousDate(mustParse(t, "03/01/2024")))
}
