// Package headless contains the stealth browser tier backed by chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 4 * time.Second
	defaultScrollSettle      = time.Second
	defaultScrollBy          = 200
	defaultWindowWidth       = 1920
	defaultWindowHeight      = 1080
)

// webdriverMask hides the automation marker most bot checks probe first.
const webdriverMask = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Config controls the behavior of the stealth session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after navigation before scrolling.
	SettleDelay time.Duration
	// ScrollBy is the vertical scroll, in pixels, used to trigger lazy content.
	ScrollBy     int
	ScrollSettle time.Duration
	WindowWidth  int
	WindowHeight int
	// MaxParallel bounds concurrent tabs; zero means unbounded.
	MaxParallel int
	Headers     http.Header
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = defaultScrollSettle
	}
	if c.ScrollBy <= 0 {
		c.ScrollBy = defaultScrollBy
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = defaultWindowWidth, defaultWindowHeight
	}
	return c
}

// Session is a long-lived headless Chrome shared by every stealth fetch in a
// run. It starts lazily and can be restarted after Close.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a stealth session. No browser is launched until Start or the
// first GetHTML.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Session{cfg: cfg, logger: logger, limiter: limiter}, nil
}

// Start launches the browser if it is not already running.
func (s *Session) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.logger.Info("stealth browser started")
	return nil
}

// Close shuts the browser down. It is safe to call without Start and more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	s.browserCtx, s.browserCancel, s.allocCancel = nil, nil, nil
	s.logger.Info("stealth browser closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Running reports whether a browser process is live.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserCtx != nil
}

// GetHTML opens url in a fresh tab, lets it settle, scrolls once, and returns
// the rendered document. The tab closes as soon as ctx is canceled.
func (s *Session) GetHTML(ctx context.Context, url string) (string, error) {
	if err := s.Start(ctx); err != nil {
		return "", err
	}
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()
	if browserCtx == nil {
		return "", errors.New("browser closed during fetch")
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	tabCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	var (
		html     string
		scrolled float64
	)
	actions := []chromedp.Action{
		s.stealthSetupAction(),
		chromedp.Navigate(url),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d); window.scrollY", s.cfg.ScrollBy), &scrolled),
		chromedp.Sleep(s.cfg.ScrollSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	return opts
}

func (s *Session) stealthSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(webdriverMask).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver mask: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
