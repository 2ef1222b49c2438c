package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fnpidb.org%2Fdoctors%2Fjane-doe&rut=abc">Jane Doe NPI</a></div>
<div class="result"><a class="result__a" href="https://health.usnews.com/doctors/jane-doe">US News</a></div>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fnpidb.org%2Fdoctors%2Fjane-doe&rut=def">Duplicate</a></div>
<div class="result"><a class="result__a" href="https://duckduckgo.com/y.js?ad=1">Ad</a></div>
<div class="result"><a class="result__a" href="javascript:void(0)">Broken</a></div>
<div class="result"><a class="result__a" href="https://www.instagram.com/drjanedoe">Instagram</a></div>
</body></html>`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestSearchReturnsRankedDistinctLinks(t *testing.T) {
	t.Parallel()

	queries := make(chan string, 1)
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(resultsPage))
	})

	client := NewDuckDuckGo(Config{Endpoint: ts.URL + "/html/"}, nil)
	links, err := client.Search(context.Background(), "Dr. Jane Doe Cardiology", 10)
	require.NoError(t, err)
	require.Equal(t, "Dr. Jane Doe Cardiology", <-queries)
	require.Equal(t, []string{
		"https://npidb.org/doctors/jane-doe",
		"https://health.usnews.com/doctors/jane-doe",
		"https://www.instagram.com/drjanedoe",
	}, links)
}

func TestSearchCapsResults(t *testing.T) {
	t.Parallel()

	ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage))
	})

	links, err := NewDuckDuckGo(Config{Endpoint: ts.URL}, nil).Search(context.Background(), "jane doe", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"https://npidb.org/doctors/jane-doe"}, links)
}

func TestSearchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage))
	})

	links, err := NewDuckDuckGo(Config{Endpoint: ts.URL, Attempts: 2}, nil).Search(context.Background(), "jane doe", 3)
	require.NoError(t, err)
	require.Len(t, links, 3)
	require.Equal(t, int32(2), calls.Load())
}

func TestSearchPermanentStatusFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, err := NewDuckDuckGo(Config{Endpoint: ts.URL, Attempts: 3}, nil).Search(context.Background(), "jane doe", 3)
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestSearchNoOpInputs(t *testing.T) {
	t.Parallel()

	client := NewDuckDuckGo(Config{Endpoint: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	links, err := client.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	require.Empty(t, links)

	links, err = client.Search(context.Background(), "jane", 0)
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestResolveResultLink(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fa%3Fb%3D1": "https://example.org/a?b=1",
		"https://example.org/profile":                                    "https://example.org/profile",
		"https://duckduckgo.com/y.js?ad=1":                               "",
		"mailto:someone@example.org":                                     "",
		"":                                                               "",
	}
	for in, want := range tests {
		require.Equal(t, want, resolveResultLink(in), in)
	}
}
