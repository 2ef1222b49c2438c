package acquire

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/extract"
	"github.com/JakeFAU/profile-refinery/internal/fetcher"
	"github.com/JakeFAU/profile-refinery/internal/policy/denylist"
	"github.com/JakeFAU/profile-refinery/internal/profile"
)

type fakeSearcher struct {
	urls    []string
	err     error
	queries []string
	limits  []int
}

func (f *fakeSearcher) Search(_ context.Context, query string, limit int) ([]string, error) {
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	return f.urls, f.err
}

type fakeFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) fetcher.Result {
	f.fetched = append(f.fetched, url)
	html, ok := f.pages[url]
	if !ok {
		return fetcher.Result{URL: url, Err: profile.ErrSourceUnavailable}
	}
	return fetcher.Result{URL: url, Content: html, Tier: fetcher.TierFast}
}

type fakeExtractor struct {
	byHTML   map[string]profile.Fields
	errs     map[string]error
	requests []extract.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req extract.Request) (profile.Fields, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.errs[req.HTML]; ok {
		return nil, err
	}
	return f.byHTML[req.HTML].Clone(), nil
}

func TestParseLine(t *testing.T) {
	t.Parallel()

	name, query := ParseLine("  Dr. Jane Doe, Cardiology, Boston  ")
	require.Equal(t, "Dr. Jane Doe", name)
	require.Equal(t, "Dr. Jane Doe, Cardiology, Boston profile", query)

	name, query = ParseLine(" , nothing")
	require.Empty(t, name)
	require.Empty(t, query)
}

func TestAcquireAcceptsMatchesInRankOrder(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{urls: []string{
		"https://npidb.org/doctors/jane-doe",
		"https://www.instagram.com/drjanedoe",
		"https://health.usnews.com/doctors/jane-doe",
		"https://example.com/never-visited",
	}}
	fetch := &fakeFetcher{pages: map[string]string{
		"https://npidb.org/doctors/jane-doe":         `<a href="/cv.pdf">CV</a>npidb`,
		"https://health.usnews.com/doctors/jane-doe": "usnews",
	}}
	extractor := &fakeExtractor{byHTML: map[string]profile.Fields{
		`<a href="/cv.pdf">CV</a>npidb`: {"name": "Jane Doe MD", "npi_id": "1234567890"},
		"usnews":                        {"name": "Dr. Jane Doe", "speciality": "Cardiology"},
	}}

	acq := New(search, fetch, extractor, denylist.New([]string{"instagram"}), Config{}, nil)
	res, err := acq.Acquire(context.Background(), "Dr. Jane Doe, Cardiology")
	require.NoError(t, err)

	require.Equal(t, []string{"Dr. Jane Doe, Cardiology profile"}, search.queries)
	require.Equal(t, []int{DefaultMaxResults}, search.limits)
	require.Equal(t, []string{
		"https://npidb.org/doctors/jane-doe",
		"https://health.usnews.com/doctors/jane-doe",
	}, fetch.fetched)

	require.Len(t, res.Candidates, 2)
	best, ok := res.Best()
	require.True(t, ok)
	require.Equal(t, "https://npidb.org/doctors/jane-doe", best.SourceURL)
	require.Equal(t, []string{"https://npidb.org/cv.pdf"}, best.Assets.Documents)
	require.Equal(t, "1234567890", best.Fields.String(profile.FieldNPI))

	for _, req := range extractor.requests {
		require.Equal(t, "Dr. Jane Doe", req.Name)
		require.Equal(t, extract.ModeProfile, req.Mode)
	}
	require.Len(t, res.Attempts, 2)
	require.Equal(t, profile.OutcomeAccepted, res.Attempts[0].Outcome)
	require.Equal(t, 1, res.Attempts[0].Tier)
}

func TestAcquireRecordsRejections(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{urls: []string{"https://a.example", "https://b.example", "https://c.example"}}
	fetch := &fakeFetcher{pages: map[string]string{
		"https://b.example": "wrong person",
		"https://c.example": "garbage",
	}}
	extractor := &fakeExtractor{
		byHTML: map[string]profile.Fields{"wrong person": {"name": "Robert Smith"}},
		errs:   map[string]error{"garbage": profile.ErrExtractionMalformed},
	}

	res, err := New(search, fetch, extractor, nil, Config{}, nil).Acquire(context.Background(), "Dr. Jane Doe")
	require.NoError(t, err)
	require.Empty(t, res.Candidates)
	_, ok := res.Best()
	require.False(t, ok)

	require.Len(t, res.Attempts, 3)
	require.Equal(t, profile.OutcomeNoContent, res.Attempts[0].Outcome)
	require.ErrorIs(t, res.Attempts[0].Err, profile.ErrSourceUnavailable)
	require.Equal(t, profile.OutcomeNoMatch, res.Attempts[1].Outcome)
	require.ErrorIs(t, res.Attempts[1].Err, profile.ErrNoMatch)
	require.Equal(t, "Robert Smith", res.Attempts[1].Name)
	require.Less(t, res.Attempts[1].Score, 70)
	require.Equal(t, profile.OutcomeMalformed, res.Attempts[2].Outcome)
}

func TestAcquireMissingNameIsEmpty(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{urls: []string{"https://a.example"}}
	fetch := &fakeFetcher{pages: map[string]string{"https://a.example": "page"}}
	extractor := &fakeExtractor{byHTML: map[string]profile.Fields{"page": {"npi_id": "1234567890"}}}

	res, err := New(search, fetch, extractor, nil, Config{}, nil).Acquire(context.Background(), "Jane Doe")
	require.NoError(t, err)
	require.Empty(t, res.Candidates)
	require.Equal(t, profile.OutcomeEmpty, res.Attempts[0].Outcome)
}

func TestAcquireSearchFailureIsNotAnError(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{err: errors.New("rate limited")}
	res, err := New(search, &fakeFetcher{}, &fakeExtractor{}, nil, Config{}, nil).Acquire(context.Background(), "Jane Doe")
	require.NoError(t, err)
	require.Empty(t, res.Candidates)
	require.Len(t, res.Attempts, 1)
	require.ErrorIs(t, res.Attempts[0].Err, profile.ErrSourceUnavailable)
}

func TestAcquireCapsResults(t *testing.T) {
	t.Parallel()

	search := &fakeSearcher{urls: []string{"https://a.example", "https://b.example", "https://c.example"}}
	fetch := &fakeFetcher{}
	_, err := New(search, fetch, &fakeExtractor{}, nil, Config{MaxResults: 2}, nil).Acquire(context.Background(), "Jane Doe")
	require.NoError(t, err)
	require.Len(t, fetch.fetched, 2)
}

func TestAcquireCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	search := &fakeSearcher{urls: []string{"https://a.example"}}
	fetch := &fakeFetcher{}

	_, err := New(search, fetch, &fakeExtractor{}, nil, Config{}, nil).Acquire(ctx, "Jane Doe")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetch.fetched)
}

func TestAcquireEmptyLine(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeSearcher{}, &fakeFetcher{}, &fakeExtractor{}, nil, Config{}, nil).Acquire(context.Background(), "   ")
	require.Error(t, err)
}
