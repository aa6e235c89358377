package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRenderer lets each test script renderer behavior through hooks.
type stubRenderer struct {
	waitCountAbove func(count int) bool
	count          func() int
	exists         func(selector string) bool
	interactable   bool
	clicked        int
}

func (s *stubRenderer) Navigate(context.Context, string) error      { return nil }
func (s *stubRenderer) OuterHTML(context.Context) (string, error)   { return "", nil }
func (s *stubRenderer) Click(context.Context, string) error         { s.clicked++; return nil }
func (s *stubRenderer) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (s *stubRenderer) Count(context.Context, string) (int, error) {
	return s.count(), nil
}

func (s *stubRenderer) WaitCountAbove(_ context.Context, _ string, count int, _ time.Duration) (bool, error) {
	return s.waitCountAbove(count), nil
}

func (s *stubRenderer) Exists(_ context.Context, selector string) (bool, error) {
	return s.exists(selector), nil
}

func (s *stubRenderer) Interactable(context.Context, string) (bool, error) {
	return s.interactable, nil
}

func newTestDriver(r Renderer) *PaginationDriver {
	d := NewPaginationDriver(r)
	d.countWait = time.Millisecond
	d.settleWait = time.Millisecond
	d.controlWait = time.Millisecond
	return d
}

func TestConfirmExtension_CountWaitSucceeds(t *testing.T) {
	r := &stubRenderer{
		waitCountAbove: func(int) bool { return true },
		count:          func() int { return 20 },
		exists:         func(string) bool { return true },
	}

	assert.True(t, newTestDriver(r).ConfirmExtension(context.Background(), 10))
}

func TestConfirmExtension_SettleResampleSucceeds(t *testing.T) {
	r := &stubRenderer{
		waitCountAbove: func(int) bool { return false },
		count:          func() int { return 15 },
		exists:         func(string) bool { return true },
	}

	assert.True(t, newTestDriver(r).ConfirmExtension(context.Background(), 10))
}

func TestConfirmExtension_ControlGoneMeansNoMorePages(t *testing.T) {
	r := &stubRenderer{
		waitCountAbove: func(int) bool { return false },
		count:          func() int { return 10 },
		exists:         func(string) bool { return false },
	}

	assert.False(t, newTestDriver(r).ConfirmExtension(context.Background(), 10))
}

func TestConfirmExtension_FinalResampleIsLastResort(t *testing.T) {
	samples := 0
	r := &stubRenderer{
		waitCountAbove: func(int) bool { return false },
		count: func() int {
			samples++
			if samples > 1 {
				return 12 // Content arrived late.
			}
			return 10
		},
		exists: func(string) bool { return true },
	}

	assert.True(t, newTestDriver(r).ConfirmExtension(context.Background(), 10))
}

func TestConfirmExtension_NothingEverLoads(t *testing.T) {
	r := &stubRenderer{
		waitCountAbove: func(int) bool { return false },
		count:          func() int { return 10 },
		exists:         func(string) bool { return true },
	}

	assert.False(t, newTestDriver(r).ConfirmExtension(context.Background(), 10))
}

func TestExtend_NotInteractable(t *testing.T) {
	r := &stubRenderer{interactable: false}
	err := newTestDriver(r).Extend(context.Background(), extendControlProbe)
	require.ErrorIs(t, err, ErrControlNotInteractable)
	assert.Zero(t, r.clicked)
}

func TestExtend_ClicksWhenInteractable(t *testing.T) {
	r := &stubRenderer{interactable: true}
	require.NoError(t, newTestDriver(r).Extend(context.Background(), extendControlProbe))
	assert.Equal(t, 1, r.clicked)
}

func TestFindExtendControl_PrefersMostSpecificSelector(t *testing.T) {
	r := &stubRenderer{
		exists: func(selector string) bool {
			return selector == extendControlSelectors[1]
		},
	}

	selector, found := newTestDriver(r).FindExtendControl(context.Background())
	require.True(t, found)
	assert.Equal(t, extendControlSelectors[1], selector)
}

func TestFindExtendControl_NoneFound(t *testing.T) {
	r := &stubRenderer{exists: func(string) bool { return false }}
	_, found := newTestDriver(r).FindExtendControl(context.Background())
	assert.False(t, found)
}
