package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/metrics"
	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// Waiter applies politeness delays before touching a host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Promoter flags tier-1 pages that cleared the floor but still need the
// stealth browser, such as bot-challenge interstitials.
type Promoter interface {
	ShouldPromote(page Page) bool
}

// Config controls tier-1 acceptance.
type Config struct {
	MinContentLength int
	// Promoter is optional; nil accepts every page above the floor.
	Promoter Promoter
}

// Tiered tries the fast fetcher first and falls back to the stealth browser
// when tier 1 errors, returns a non-2xx status or too little content, or the
// promoter rejects the page.
type Tiered struct {
	fast    PageFetcher
	stealth Browser
	limiter Waiter
	cfg     Config
	logger  *zap.Logger
}

// NewTiered wires both tiers. A nil stealth browser disables tier 2.
func NewTiered(fast PageFetcher, stealth Browser, limiter Waiter, cfg Config, logger *zap.Logger) *Tiered {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	if stealth == nil {
		stealth = Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{
		fast:    fast,
		stealth: stealth,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch returns the earliest acceptable content for url.
func (t *Tiered) Fetch(ctx context.Context, url string) Result {
	start := time.Now()
	res := Result{URL: url}

	body, fastErr := t.fastPath(ctx, url)
	if fastErr == nil {
		res.Content = body
		res.Tier = TierFast
		res.Duration = time.Since(start)
		return res
	}
	t.logger.Debug("fast fetch rejected, switching to stealth", zap.String("url", url), zap.Error(fastErr))
	if ctx.Err() != nil {
		res.Err = fmt.Errorf("fetch %s: %w", url, ctx.Err())
		res.Duration = time.Since(start)
		return res
	}

	html, stealthErr := t.stealthPath(ctx, url)
	res.Duration = time.Since(start)
	if stealthErr != nil {
		res.Err = fmt.Errorf("%w: %s: %w", profile.ErrSourceUnavailable, url, errors.Join(fastErr, stealthErr))
		return res
	}
	res.Content = html
	res.Tier = TierStealth
	return res
}

func (t *Tiered) fastPath(ctx context.Context, url string) (string, error) {
	if t.fast == nil {
		return "", errors.New("fast fetcher not configured")
	}
	if err := t.wait(ctx, url); err != nil {
		return "", err
	}
	page, err := t.fast.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, TierFast.String(), "error", 0)
		return "", fmt.Errorf("fast fetch: %w", err)
	}
	if page.StatusCode != 0 && (page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices) {
		metrics.ObserveFetch(url, TierFast.String(), "status", 0)
		return "", fmt.Errorf("fast fetch: status %d", page.StatusCode)
	}
	if len(page.Body) < t.cfg.MinContentLength {
		metrics.ObserveFetch(url, TierFast.String(), "short", 0)
		return "", fmt.Errorf("fast fetch: %d bytes below floor of %d", len(page.Body), t.cfg.MinContentLength)
	}
	if t.cfg.Promoter != nil && t.cfg.Promoter.ShouldPromote(page) {
		metrics.ObserveFetch(url, TierFast.String(), "promoted", 0)
		return "", errors.New("fast fetch: page needs a rendered fetch")
	}
	metrics.ObserveFetch(url, TierFast.String(), "ok", len(page.Body))
	return string(page.Body), nil
}

func (t *Tiered) stealthPath(ctx context.Context, url string) (string, error) {
	if err := t.wait(ctx, url); err != nil {
		return "", err
	}
	html, err := t.stealth.GetHTML(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, TierStealth.String(), "error", 0)
		return "", fmt.Errorf("stealth fetch: %w", err)
	}
	if html == "" {
		metrics.ObserveFetch(url, TierStealth.String(), "empty", 0)
		return "", errors.New("stealth fetch: empty document")
	}
	metrics.ObserveFetch(url, TierStealth.String(), "ok", len(html))
	return html, nil
}

func (t *Tiered) wait(ctx context.Context, url string) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx, url); err != nil {
		return fmt.Errorf("politeness wait: %w", err)
	}
	return nil
}
