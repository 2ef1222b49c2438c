// Package acquire finds candidate profiles for one input line: search, tiered
// fetch, asset discovery, extraction and name matching.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/assets"
	"github.com/JakeFAU/profile-refinery/internal/extract"
	"github.com/JakeFAU/profile-refinery/internal/fetcher"
	"github.com/JakeFAU/profile-refinery/internal/match"
	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// DefaultMaxResults caps the URLs visited per input line.
const DefaultMaxResults = 3

// Searcher returns result URLs in rank order.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// PageFetcher loads page content through the fetch tiers.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) fetcher.Result
}

// Extractor turns page HTML into fields.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (profile.Fields, error)
}

// URLFilter drops result URLs that should never be visited.
type URLFilter interface {
	Filter(urls []string) []string
}

// Config tunes acquisition.
type Config struct {
	MaxResults     int
	MatchThreshold int
	// Matcher scores name similarity 0..100; defaults to match.TokenSetRatio.
	Matcher func(a, b string) int
}

// Result is the outcome of one acquisition. Candidates are in search-rank
// order, so the first one is the best.
type Result struct {
	Candidates []profile.Profile
	Attempts   []profile.Attempt
}

// Best returns the first accepted candidate.
func (r Result) Best() (profile.Profile, bool) {
	if len(r.Candidates) == 0 {
		return profile.Profile{}, false
	}
	return r.Candidates[0], true
}

// Acquirer runs acquisitions. It is safe for sequential use by one pipeline.
type Acquirer struct {
	search  Searcher
	fetch   PageFetcher
	extract Extractor
	filter  URLFilter
	cfg     Config
	logger  *zap.Logger
}

// New wires an Acquirer. filter may be nil.
func New(search Searcher, fetch PageFetcher, extractor Extractor, filter URLFilter, cfg Config, logger *zap.Logger) *Acquirer {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = match.DefaultThreshold
	}
	if cfg.Matcher == nil {
		cfg.Matcher = match.TokenSetRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		search:  search,
		fetch:   fetch,
		extract: extractor,
		filter:  filter,
		cfg:     cfg,
		logger:  logger,
	}
}

// ParseLine splits an input line of the form "name, qualifier, ..." into the
// name used for matching and the search query built from the whole line.
func ParseLine(line string) (name, query string) {
	line = strings.TrimSpace(line)
	first, _, _ := strings.Cut(line, ",")
	name = strings.TrimSpace(first)
	if name == "" {
		return "", ""
	}
	return name, line + " profile"
}

// Acquire searches for line and returns every candidate whose extracted name
// matches. Per-URL failures are recorded in Result.Attempts and never abort
// the acquisition; a failed search yields an empty result with the cause in
// Attempts. Only context cancellation and an empty line are returned as errors.
func (a *Acquirer) Acquire(ctx context.Context, line string) (Result, error) {
	name, query := ParseLine(line)
	if name == "" {
		return Result{}, errors.New("acquire: empty input line")
	}

	var res Result
	urls, err := a.search.Search(ctx, query, a.cfg.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("acquire %q: %w", name, ctx.Err())
		}
		a.logger.Warn("search failed", zap.String("name", name), zap.Error(err))
		res.Attempts = append(res.Attempts, profile.Attempt{
			Outcome: profile.OutcomeNoContent,
			Err:     fmt.Errorf("%w: search: %w", profile.ErrSourceUnavailable, err),
		})
		return res, nil
	}
	if len(urls) > a.cfg.MaxResults {
		urls = urls[:a.cfg.MaxResults]
	}
	if a.filter != nil {
		urls = a.filter.Filter(urls)
	}
	a.logger.Debug("search complete", zap.String("name", name), zap.Int("links", len(urls)))

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("acquire %q: %w", name, err)
		}
		candidate, attempt := a.visit(ctx, name, url)
		res.Attempts = append(res.Attempts, attempt)
		a.logger.Info("link processed",
			zap.String("name", name),
			zap.Int("link", i+1),
			zap.String("url", url),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Duration("duration", attempt.Duration),
		)
		if attempt.Outcome == profile.OutcomeAccepted {
			res.Candidates = append(res.Candidates, candidate)
		}
	}
	return res, nil
}

func (a *Acquirer) visit(ctx context.Context, name, url string) (profile.Profile, profile.Attempt) {
	start := time.Now()
	attempt := profile.Attempt{URL: url}

	page := a.fetch.Fetch(ctx, url)
	attempt.Tier = int(page.Tier)
	if !page.OK() {
		attempt.Outcome = profile.OutcomeNoContent
		attempt.Err = page.Err
		attempt.Duration = time.Since(start)
		return profile.Profile{}, attempt
	}

	found, err := assets.Discover(page.Content, url)
	if err != nil {
		a.logger.Debug("asset discovery failed", zap.String("url", url), zap.Error(err))
	}

	fields, err := a.extract.Extract(ctx, extract.Request{Name: name, HTML: page.Content, Mode: extract.ModeProfile})
	attempt.Duration = time.Since(start)
	switch {
	case errors.Is(err, profile.ErrExtractionMalformed):
		attempt.Outcome = profile.OutcomeMalformed
		attempt.Err = err
		return profile.Profile{}, attempt
	case err != nil:
		attempt.Outcome = profile.OutcomeEmpty
		attempt.Err = err
		return profile.Profile{}, attempt
	}

	extracted := fields.String(profile.FieldName)
	if !fields.Has(profile.FieldName) {
		attempt.Outcome = profile.OutcomeEmpty
		return profile.Profile{}, attempt
	}
	attempt.Name = extracted
	attempt.Score = a.cfg.Matcher(name, extracted)
	if attempt.Score < a.cfg.MatchThreshold {
		attempt.Outcome = profile.OutcomeNoMatch
		attempt.Err = fmt.Errorf("%w: got %q (%d%%)", profile.ErrNoMatch, extracted, attempt.Score)
		return profile.Profile{}, attempt
	}

	attempt.Outcome = profile.OutcomeAccepted
	attempt.Found = fields.Keys()
	return profile.Profile{Fields: fields, SourceURL: url, Assets: found}, attempt
}
