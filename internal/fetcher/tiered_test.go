package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

type fakePageFetcher struct {
	mu    sync.Mutex
	page  Page
	err   error
	calls int
}

func (f *fakePageFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p := f.page
	p.URL = url
	return p, f.err
}

type fakeBrowser struct {
	mu    sync.Mutex
	html  string
	err   error
	calls int
}

func (b *fakeBrowser) Start(context.Context) error { return nil }

func (b *fakeBrowser) GetHTML(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.html, b.err
}

func (b *fakeBrowser) Close() error { return nil }

type countingWaiter struct {
	calls int
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls++
	return nil
}

func TestTieredFastPathSkipsStealth(t *testing.T) {
	t.Parallel()

	fast := &fakePageFetcher{page: Page{StatusCode: 200, Body: []byte(strings.Repeat("x", 500))}}
	stealth := &fakeBrowser{html: "<html>stealth</html>"}
	waiter := &countingWaiter{}
	tiered := NewTiered(fast, stealth, waiter, Config{}, nil)

	res := tiered.Fetch(context.Background(), "https://npidb.org/doctors/1")
	require.True(t, res.OK())
	require.Equal(t, TierFast, res.Tier)
	require.Len(t, res.Content, 500)
	require.Equal(t, 0, stealth.calls)
	require.Equal(t, 1, waiter.calls)
}

func TestTieredFallsBackToStealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fast *fakePageFetcher
	}{
		{name: "fast error", fast: &fakePageFetcher{err: errors.New("timeout")}},
		{name: "short content", fast: &fakePageFetcher{page: Page{StatusCode: 200, Body: []byte(strings.Repeat("x", 499))}}},
		{name: "error status", fast: &fakePageFetcher{page: Page{StatusCode: 403, Body: []byte(strings.Repeat("x", 2000))}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stealth := &fakeBrowser{html: "<html>rendered</html>"}
			tiered := NewTiered(tt.fast, stealth, nil, Config{}, nil)

			res := tiered.Fetch(context.Background(), "https://example.com/doc")
			require.True(t, res.OK())
			require.Equal(t, TierStealth, res.Tier)
			require.Equal(t, "<html>rendered</html>", res.Content)
			require.Equal(t, 1, tt.fast.calls)
			require.Equal(t, 1, stealth.calls)
		})
	}
}

func TestTieredBothTiersFail(t *testing.T) {
	t.Parallel()

	fast := &fakePageFetcher{err: errors.New("dns failure")}
	stealth := &fakeBrowser{err: errors.New("navigation failed")}
	res := NewTiered(fast, stealth, nil, Config{}, nil).Fetch(context.Background(), "https://example.com")

	require.False(t, res.OK())
	require.Empty(t, res.Content)
	require.Equal(t, TierNone, res.Tier)
	require.ErrorIs(t, res.Err, profile.ErrSourceUnavailable)
}

func TestTieredDisabledStealth(t *testing.T) {
	t.Parallel()

	fast := &fakePageFetcher{page: Page{StatusCode: 200, Body: []byte("tiny")}}
	res := NewTiered(fast, nil, nil, Config{MinContentLength: 10}, nil).Fetch(context.Background(), "https://example.com")

	require.False(t, res.OK())
	require.ErrorIs(t, res.Err, ErrBrowserDisabled)
}

func TestTieredCanceledContextSkipsStealth(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fast := &fakePageFetcher{err: context.Canceled}
	stealth := &fakeBrowser{html: "<html></html>"}

	res := NewTiered(fast, stealth, nil, Config{}, nil).Fetch(ctx, "https://example.com")
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, 0, stealth.calls)
}

type promoteAll struct{}

func (promoteAll) ShouldPromote(Page) bool { return true }

func TestTieredPromoterForcesStealth(t *testing.T) {
	t.Parallel()

	fast := &fakePageFetcher{page: Page{StatusCode: 200, Body: []byte(strings.Repeat("x", 2000))}}
	stealth := &fakeBrowser{html: "<html>rendered</html>"}
	res := NewTiered(fast, stealth, nil, Config{Promoter: promoteAll{}}, nil).Fetch(context.Background(), "https://example.com")

	require.True(t, res.OK())
	require.Equal(t, TierStealth, res.Tier)
	require.Equal(t, 1, stealth.calls)
}
