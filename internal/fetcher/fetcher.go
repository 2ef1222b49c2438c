// Package fetcher retrieves raw page content through two tiers: a fast
// plain-HTTP collector and a shared stealth browser used only as a fallback.
package fetcher

import (
	"context"
	"errors"
	"time"
)

// DefaultMinContentLength is the smallest tier-1 body accepted without falling back.
const DefaultMinContentLength = 500

// ErrBrowserDisabled is returned by the disabled browser.
var ErrBrowserDisabled = errors.New("stealth browser disabled")

// Page is the tier-1 response.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// PageFetcher performs a single bounded, cache-bypassing GET.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Browser is the long-lived tier-2 session. Start and Close bracket a run;
// GetHTML starts the session lazily if needed.
type Browser interface {
	Start(ctx context.Context) error
	GetHTML(ctx context.Context, url string) (string, error)
	Close() error
}

// Tier identifies which strategy produced content.
type Tier int

// Fetch tiers.
const (
	TierNone Tier = iota
	TierFast
	TierStealth
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierStealth:
		return "stealth"
	default:
		return "none"
	}
}

// Result is the outcome of a tiered fetch. Content is empty and Err set when
// both tiers failed.
type Result struct {
	URL      string
	Content  string
	Tier     Tier
	Err      error
	Duration time.Duration
}

// OK reports whether content was obtained.
func (r Result) OK() bool {
	return r.Err == nil && r.Content != ""
}

// Disabled is a Browser that never loads anything; it lets the pipeline run
// tier-1 only.
type Disabled struct{}

// Start implements Browser.
func (Disabled) Start(context.Context) error { return nil }

// GetHTML implements Browser and always fails.
func (Disabled) GetHTML(context.Context, string) (string, error) {
	return "", ErrBrowserDisabled
}

// Close implements Browser.
func (Disabled) Close() error { return nil }
