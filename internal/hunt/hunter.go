// Package hunt runs a targeted search for the fields a low-confidence profile
// is still missing.
package hunt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/acquire"
	"github.com/JakeFAU/profile-refinery/internal/extract"
	"github.com/JakeFAU/profile-refinery/internal/fetcher"
	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// DefaultMaxResults caps the URLs visited per hunt.
const DefaultMaxResults = 6

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

// Config tunes the hunt.
type Config struct {
	MaxResults int
}

// Result holds the fields found and one Attempt per visited URL.
type Result struct {
	Found    profile.Fields
	Attempts []profile.Attempt
}

// Hunter looks for specific missing fields.
type Hunter struct {
	search  Searcher
	fetch   PageFetcher
	extract Extractor
	cfg     Config
	logger  *zap.Logger
}

// New wires a Hunter.
func New(search Searcher, fetch PageFetcher, extractor Extractor, cfg Config, logger *zap.Logger) *Hunter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hunter{search: search, fetch: fetch, extract: extractor, cfg: cfg, logger: logger}
}

// Query builds the hunt search query for an input line and the missing
// fields. Qualifiers after the name stay in the query.
func Query(line string, missing []string) string {
	parts := append([]string{strings.TrimSpace(line)}, missing...)
	parts = append(parts, "profile")
	return strings.Join(parts, " ")
}

// Hunt searches once and visits result pages until every field in missing
// has been found or the results run out. Only requested fields are returned;
// no name matching is applied. Failures are per URL and never abort the hunt.
// The extraction target is the name before the first comma of line.
func (h *Hunter) Hunt(ctx context.Context, line string, missing []string) Result {
	res := Result{Found: profile.Fields{}}
	remaining := slices.Clone(missing)
	if len(remaining) == 0 {
		return res
	}
	name, _ := acquire.ParseLine(line)

	urls, err := h.search.Search(ctx, Query(line, missing), h.cfg.MaxResults)
	if err != nil {
		h.logger.Warn("hunt search failed", zap.String("name", name), zap.Error(err))
		res.Attempts = append(res.Attempts, profile.Attempt{
			Outcome: profile.OutcomeNoContent,
			Err:     fmt.Errorf("%w: search: %w", profile.ErrSourceUnavailable, err),
		})
		return res
	}
	if len(urls) > h.cfg.MaxResults {
		urls = urls[:h.cfg.MaxResults]
	}

	for _, url := range urls {
		if len(remaining) == 0 || ctx.Err() != nil {
			break
		}
		found, attempt := h.visit(ctx, name, url, remaining)
		res.Attempts = append(res.Attempts, attempt)
		if len(found) == 0 {
			continue
		}
		res.Found.Merge(found)
		remaining = slices.DeleteFunc(remaining, res.Found.Has)
		h.logger.Info("hunt found fields",
			zap.String("name", name),
			zap.String("url", url),
			zap.Strings("found", found.Keys()),
			zap.Strings("remaining", remaining),
		)
	}
	return res
}

func (h *Hunter) visit(ctx context.Context, name, url string, remaining []string) (profile.Fields, profile.Attempt) {
	start := time.Now()
	attempt := profile.Attempt{URL: url}

	page := h.fetch.Fetch(ctx, url)
	attempt.Tier = int(page.Tier)
	if !page.OK() {
		attempt.Outcome = profile.OutcomeNoContent
		attempt.Err = page.Err
		attempt.Duration = time.Since(start)
		return nil, attempt
	}

	fields, err := h.extract.Extract(ctx, extract.Request{
		Name:   name,
		HTML:   page.Content,
		Fields: slices.Clone(remaining),
		Mode:   extract.ModeMissing,
	})
	attempt.Duration = time.Since(start)
	switch {
	case errors.Is(err, profile.ErrExtractionMalformed):
		attempt.Outcome = profile.OutcomeMalformed
		attempt.Err = err
		return nil, attempt
	case err != nil:
		attempt.Outcome = profile.OutcomeEmpty
		attempt.Err = err
		return nil, attempt
	}

	found := profile.Fields{}
	for _, key := range remaining {
		if fields.Has(key) {
			found[key] = fields[key]
		}
	}
	if len(found) == 0 {
		attempt.Outcome = profile.OutcomeEmpty
		return nil, attempt
	}
	attempt.Outcome = profile.OutcomeAccepted
	attempt.Found = found.Keys()
	return found, attempt
}
