package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/fetcher"
)

var _ fetcher.Browser = (*Session)(nil)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	s, err := New(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cap(s.limiter))
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	s, err := New(Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, s.cfg.NavigationTimeout)
	require.Equal(t, 4*time.Second, s.cfg.SettleDelay)
	require.Equal(t, time.Second, s.cfg.ScrollSettle)
	require.Equal(t, 200, s.cfg.ScrollBy)
	require.Equal(t, 1920, s.cfg.WindowWidth)
	require.Equal(t, 1080, s.cfg.WindowHeight)
	require.Nil(t, s.limiter)

	s, err = New(Config{SettleDelay: time.Millisecond, ScrollBy: 50}, nil)
	require.NoError(t, err)
	require.Equal(t, time.Millisecond, s.cfg.SettleDelay)
	require.Equal(t, 50, s.cfg.ScrollBy)
}

func TestCloseWithoutStart(t *testing.T) {
	t.Parallel()

	s, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.False(t, s.Running())
}

func TestStartCanceledContext(t *testing.T) {
	t.Parallel()

	s, err := New(Config{}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Start(ctx), context.Canceled)
	require.False(t, s.Running())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	s, err := New(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, s.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.acquire(ctx), context.DeadlineExceeded)

	s.release()
	require.NoError(t, s.acquire(context.Background()))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"Accept-Language": {"en-US"}, "X-Test": {"a", "b"}, "Empty": nil}
	got := toNetworkHeaders(src)
	require.Equal(t, "en-US", got["Accept-Language"])
	require.Equal(t, []string{"a", "b"}, got["X-Test"])
	require.NotContains(t, got, "Empty")
}
