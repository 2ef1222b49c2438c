// Package search finds candidate profile URLs through DuckDuckGo's HTML endpoint.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/metrics"
)

// DefaultEndpoint is DuckDuckGo's JavaScript-free results page.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

const resultSelector = "a.result__a"

// Config controls the search client.
type Config struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	Attempts  uint
}

// StatusError reports a non-success response from the search endpoint.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// DuckDuckGo issues web searches and returns result URLs in rank order.
type DuckDuckGo struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// NewDuckDuckGo builds a search client.
func NewDuckDuckGo(cfg Config, logger *zap.Logger) *DuckDuckGo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuckDuckGo{
		cfg:    cfg,
		base:   colly.NewCollector(colly.AllowURLRevisit()),
		logger: logger,
	}
}

// Search returns at most limit distinct result URLs for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	links, err := retry.DoWithData(
		func() ([]string, error) {
			return d.searchOnce(ctx, query)
		},
		retry.Context(ctx),
		retry.Attempts(d.cfg.Attempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Debug("retrying search", zap.Uint("attempt", n+1), zap.String("query", query), zap.Error(err))
		}),
	)
	if err != nil {
		metrics.ObserveSearch("error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("search %q: %w", query, ctxErr)
		}
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	links = dedupe(links, limit)
	if len(links) == 0 {
		metrics.ObserveSearch("empty")
	} else {
		metrics.ObserveSearch("ok")
	}
	return links, nil
}

func (d *DuckDuckGo) searchOnce(ctx context.Context, query string) ([]string, error) {
	collector := d.base.Clone()
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.SetRequestTimeout(d.cfg.Timeout)

	var (
		links   []string
		respErr error
	)
	collector.OnHTML(resultSelector, func(e *colly.HTMLElement) {
		if link := resolveResultLink(e.Attr("href")); link != "" {
			links = append(links, link)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		code := 0
		if r != nil {
			code = r.StatusCode
		}
		respErr = &StatusError{Code: code, Err: err}
	})

	target := d.cfg.Endpoint + "?q=" + url.QueryEscape(query)
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if respErr != nil {
			return nil, respErr
		}
		if err != nil {
			return nil, fmt.Errorf("visit search page: %w", err)
		}
	}
	return links, nil
}

// resolveResultLink unwraps DuckDuckGo redirect links and drops anything that
// is not an http(s) target.
func resolveResultLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		u, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		return ""
	}
	return u.String()
}

func dedupe(links []string, limit int) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, min(len(links), limit))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
		if len(out) == limit {
			break
		}
	}
	return out
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 0, http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}
