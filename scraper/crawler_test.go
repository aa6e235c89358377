package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suoware/blogwatch"
)

// testCard renders one listing card.
func testCard(title, url, author, date string) string {
	return fmt.Sprintf(`<li>
		<div class="m-card-info">%s, %s</div>
		<div class="m-card-title"><a href="%s">%s</a></div>
		<div class="m-card-description">About %s.</div>
	</li>`, author, date, url, title, title)
}

// fakePage is the listing after a given number of successful extensions.
// Cards are cumulative: each page contains everything the previous one did.
type fakePage struct {
	cards      []string
	hasControl bool
}

// fakeRenderer scripts a sequence of listing states. A successful
// WaitCountAbove advances to the next page, mimicking the DOM growing after
// an extend click.
type fakeRenderer struct {
	pages []fakePage
	idx   int

	navigations    []string
	clicks         int
	waitVisibleErr error
	notClickable   bool
}

func (f *fakeRenderer) page() fakePage { return f.pages[f.idx] }

func (f *fakeRenderer) Navigate(_ context.Context, url string) error {
	f.navigations = append(f.navigations, url)
	return nil
}

func (f *fakeRenderer) OuterHTML(context.Context) (string, error) {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="aws-directories-container">`)
	for _, card := range f.page().cards {
		b.WriteString(card)
	}
	b.WriteString("</ul>")
	if f.page().hasControl {
		b.WriteString(`<a class="m-directories-more">Load More</a>`)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (f *fakeRenderer) Count(context.Context, string) (int, error) {
	return len(f.page().cards), nil
}

func (f *fakeRenderer) WaitVisible(context.Context, string, time.Duration) error {
	if f.waitVisibleErr != nil {
		return f.waitVisibleErr
	}
	if len(f.page().cards) == 0 {
		return errors.New("timed out waiting for cards")
	}
	return nil
}

func (f *fakeRenderer) WaitCountAbove(_ context.Context, _ string, count int, _ time.Duration) (bool, error) {
	if f.idx+1 < len(f.pages) && len(f.pages[f.idx+1].cards) > count {
		f.idx++
		return true, nil
	}
	return false, nil
}

func (f *fakeRenderer) Exists(context.Context, string) (bool, error) {
	return f.page().hasControl, nil
}

func (f *fakeRenderer) Interactable(context.Context, string) (bool, error) {
	return !f.notClickable, nil
}

func (f *fakeRenderer) Click(context.Context, string) error {
	f.clicks++
	return nil
}

// newTestCrawler builds a crawler over the fake with near-zero waits so the
// confirmation fallbacks don't slow the tests down.
func newTestCrawler(f *fakeRenderer, maxLoads int) *Crawler {
	c := NewCrawler(f, Config{ListingURL: "https://example.com/blogs/", MaxLoads: maxLoads})
	c.driver.countWait = time.Millisecond
	c.driver.settleWait = time.Millisecond
	c.driver.controlWait = time.Millisecond
	return c
}

func TestCrawler_CollectsAcrossExtensions(t *testing.T) {
	target := "06/19/2025"
	a := testCard("Post A", "https://x.com/blogs/a/", "Jane", target)
	b := testCard("Post B", "https://x.com/blogs/b/", "John", target)
	c := testCard("Post C", "https://x.com/blogs/c/", "Jane", target)
	old := testCard("Old Post", "https://x.com/blogs/old/", "Jane", "06/18/2025")

	f := &fakeRenderer{pages: []fakePage{
		{cards: []string{a, b}, hasControl: true},
		{cards: []string{a, b, c, old}, hasControl: true},
	}}

	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	require.Len(t, posts, 3)
	assert.Equal(t, "Post A", posts[0].Title)
	assert.Equal(t, "Post B", posts[1].Title)
	assert.Equal(t, "Post C", posts[2].Title)
	assert.Equal(t, 1, f.clicks)
	assert.Equal(t, []string{"https://example.com/blogs/"}, f.navigations)
}

func TestCrawler_StopsAtDateBoundaryWithoutExtending(t *testing.T) {
	target := "06/19/2025"
	f := &fakeRenderer{pages: []fakePage{
		{
			cards: []string{
				testCard("Fresh", "https://x.com/blogs/fresh/", "Jane", target),
				testCard("Stale", "https://x.com/blogs/stale/", "Jane", "06/18/2025"),
			},
			hasControl: true,
		},
		{cards: []string{testCard("Never", "https://x.com/blogs/never/", "Jane", target)}},
	}}

	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	require.Len(t, posts, 1)
	assert.Equal(t, "Fresh", posts[0].Title)
	// The boundary check fires before the extend control is even looked
	// for, so no click happens.
	assert.Zero(t, f.clicks)
}

func TestCrawler_StopsWhenControlAbsent(t *testing.T) {
	target := "06/19/2025"
	f := &fakeRenderer{pages: []fakePage{
		{cards: []string{testCard("Only", "https://x.com/blogs/only/", "Jane", target)}},
	}}

	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Zero(t, f.clicks)
}

func TestCrawler_DeduplicatesByURL(t *testing.T) {
	target := "06/19/2025"
	dup := testCard("Post A", "https://x.com/blogs/a/", "Jane", target)
	f := &fakeRenderer{pages: []fakePage{
		{cards: []string{dup}, hasControl: true},
		{cards: []string{dup, dup, testCard("Post B", "https://x.com/blogs/b/", "Jane", target)}},
	}}

	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	require.Len(t, posts, 2)
	assert.Equal(t, "Post A", posts[0].Title)
	assert.Equal(t, "Post B", posts[1].Title)
}

func TestCrawler_RerunWithPersistedPostsCollectsNothing(t *testing.T) {
	target := "06/19/2025"
	f := &fakeRenderer{pages: []fakePage{
		{cards: []string{
			testCard("Known", "https://x.com/blogs/known/", "Jane", target),
			testCard("Done", "https://x.com/blogs/done/", "Jane", "06/18/2025"),
		}},
	}}

	existing := []blogwatch.PostRecord{{URL: "https://x.com/blogs/known/"}}
	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, existing)
	require.NoError(t, err)

	assert.Empty(t, posts)
	assert.Zero(t, f.clicks)
	assert.Len(t, f.navigations, 1)
}

func TestCrawler_StopsWhenExtensionNeverConfirms(t *testing.T) {
	target := "06/19/2025"
	f := &fakeRenderer{pages: []fakePage{
		{
			cards:      []string{testCard("Post A", "https://x.com/blogs/a/", "Jane", target)},
			hasControl: true,
		},
	}}

	posts, err := newTestCrawler(f, 1000).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	require.Len(t, posts, 1)
	// One click was attempted, confirmation failed, and the loop stopped
	// well short of the load cap.
	assert.Equal(t, 1, f.clicks)
}

func TestCrawler_StopsAtMaxLoads(t *testing.T) {
	target := "06/19/2025"
	pages := make([]fakePage, 6)
	var cards []string
	for i := range pages {
		cards = append(cards, testCard(
			fmt.Sprintf("Post %d", i),
			fmt.Sprintf("https://x.com/blogs/p%d/", i),
			"Jane", target,
		))
		pages[i] = fakePage{cards: append([]string(nil), cards...), hasControl: true}
	}
	f := &fakeRenderer{pages: pages}

	posts, err := newTestCrawler(f, 3).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	// Three scan-then-extend cycles, then the cap.
	assert.Len(t, posts, 3)
	assert.Equal(t, 3, f.clicks)
}

func TestCrawler_ListingLoadFailureIsFatal(t *testing.T) {
	f := &fakeRenderer{
		pages:          []fakePage{{cards: nil}},
		waitVisibleErr: errors.New("timed out"),
	}

	_, err := newTestCrawler(f, 50).PostsForDate(context.Background(), "06/19/2025", nil)
	require.Error(t, err)

	var scrapeErr *ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	assert.Equal(t, FailureListingLoad, scrapeErr.Kind)
}

func TestCrawler_SkipsMalformedCards(t *testing.T) {
	target := "06/19/2025"
	broken := `<li><div class="m-card-title"><a href="https://x.com/blogs/broken/">No info</a></div></li>`
	f := &fakeRenderer{pages: []fakePage{
		{cards: []string{
			broken,
			testCard("Whole", "https://x.com/blogs/whole/", "Jane", target),
		}},
	}}

	posts, err := newTestCrawler(f, 50).PostsForDate(context.Background(), target, nil)
	require.NoError(t, err)

	require.Len(t, posts, 1)
	assert.Equal(t, "Whole", posts[0].Title)
}
