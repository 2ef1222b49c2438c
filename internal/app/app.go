// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/acquire"
	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/config"
	"github.com/JakeFAU/profile-refinery/internal/extract"
	"github.com/JakeFAU/profile-refinery/internal/fetcher"
	collyfetcher "github.com/JakeFAU/profile-refinery/internal/fetcher/colly"
	"github.com/JakeFAU/profile-refinery/internal/fetcher/detector"
	"github.com/JakeFAU/profile-refinery/internal/fetcher/headless"
	"github.com/JakeFAU/profile-refinery/internal/hash/sha256"
	"github.com/JakeFAU/profile-refinery/internal/hunt"
	"github.com/JakeFAU/profile-refinery/internal/id/uuid"
	"github.com/JakeFAU/profile-refinery/internal/pipeline"
	"github.com/JakeFAU/profile-refinery/internal/policy/denylist"
	"github.com/JakeFAU/profile-refinery/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-refinery/internal/progress"
	"github.com/JakeFAU/profile-refinery/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/profile-refinery/internal/publisher/pubsub"
	"github.com/JakeFAU/profile-refinery/internal/search"
	"github.com/JakeFAU/profile-refinery/internal/storage"
	"github.com/JakeFAU/profile-refinery/internal/storage/gcs"
	"github.com/JakeFAU/profile-refinery/internal/storage/local"
	"github.com/JakeFAU/profile-refinery/internal/store"
	"github.com/JakeFAU/profile-refinery/internal/store/memory"
	"github.com/JakeFAU/profile-refinery/internal/store/postgres"
	"github.com/JakeFAU/profile-refinery/internal/store/sqlite"
	"github.com/JakeFAU/profile-refinery/pkg/anthropic"
	"github.com/JakeFAU/profile-refinery/pkg/openai"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and closed by the command that built it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      store.Clock
	store      store.Store
	hub        *progress.Hub
	browser    fetcher.Browser
	controller *pipeline.Controller
	closers    []func() error
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	publisher  sinks.Publisher
	completer  extract.Completer
	browser    fetcher.Browser
	clock      store.Clock
}

// WithRegisterer registers the progress collectors against reg instead of
// the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPublisher replaces the Pub/Sub publisher built from config.
func WithPublisher(pub sinks.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// WithCompleter replaces the language model built from config.
func WithCompleter(c extract.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithBrowser replaces the stealth browser built from config.
func WithBrowser(b fetcher.Browser) Option {
	return func(o *options) { o.browser = b }
}

// WithClock sets the clock used for record timestamps and snapshot names.
func WithClock(c store.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds every service described by cfg. It fails fast if any critical
// service cannot be initialized and releases whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}

	a := &App{cfg: cfg, logger: logger, clock: o.clock}
	ready := false
	defer func() {
		if !ready {
			a.Close(context.Background())
		}
	}()

	var err error

	logger.Info("initializing application services",
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", cfg.Extract.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	a.store, err = openStore(ctx, cfg.Store, o.clock)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.hub, err = a.buildHub(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("initialize progress hub: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.PerDomainQPS,
		DefaultBurst: cfg.Fetch.PerDomainBurst,
	})
	fast := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})

	a.browser = o.browser
	if a.browser == nil {
		a.browser, err = buildBrowser(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize browser: %w", err)
		}
	}
	a.closers = append(a.closers, a.browser.Close)
	tiered := fetcher.NewTiered(fast, a.browser, limiter, fetcher.Config{
		MinContentLength: cfg.Fetch.MinContentLength,
		Promoter:         detector.NewHeuristic(cfg.Headless.PromotionThresh, cfg.Headless.PromoteSPA),
	}, logger.Named("fetch"))

	searcher := search.NewDuckDuckGo(search.Config{
		Endpoint:  cfg.Search.Endpoint,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.SearchTimeout(),
		Attempts:  cfg.Search.Attempts,
	}, logger.Named("search"))

	completer := o.completer
	if completer == nil {
		completer = buildCompleter(cfg)
	}
	extractor := extract.NewLLM(completer, extract.Config{
		ProfileMaxChars: cfg.Extract.ProfileMaxChars,
		MissingMaxChars: cfg.Extract.MissingMaxChars,
		BreakerFailures: cfg.Extract.BreakerFailures,
		BreakerTimeout:  time.Duration(cfg.Extract.BreakerTimeout) * time.Second,
	}, logger.Named("extract"))

	acquirer := acquire.New(searcher, tiered, extractor, denylist.New(cfg.Pipeline.DenyList), acquire.Config{
		MaxResults:     cfg.Pipeline.AcquireMaxResults,
		MatchThreshold: cfg.Pipeline.MatchThreshold,
	}, logger.Named("acquire"))
	hunter := hunt.New(searcher, tiered, extractor, hunt.Config{
		MaxResults: cfg.Pipeline.HuntMaxResults,
	}, logger.Named("hunt"))

	a.controller, err = pipeline.New(pipeline.Deps{
		Acquirer: acquirer,
		Hunter:   hunter,
		Browser:  a.browser,
		Store:    a.store,
		Emitter:  a.hub,
		Clock:    o.clock,
		IDs:      uuid.New(),
	}, pipeline.Config{Threshold: cfg.Pipeline.Threshold}, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}

	ready = true
	logger.Info("application services initialized")
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Store returns the record store.
func (a *App) Store() store.Store { return a.store }

// Controller returns the pipeline controller.
func (a *App) Controller() *pipeline.Controller { return a.controller }

// Export writes every stored record as a JSON Lines snapshot plus a SHA-256
// sidecar. dest is either gs://bucket[/prefix] or a local
// directory; an empty dest uses the configured export destination, the GCS
// bucket when one is set and the local directory otherwise.
func (a *App) Export(ctx context.Context, dest string) (storage.Snapshot, error) {
	target := resolveExportTarget(a.cfg.Export, dest)
	blob, closeBlob, err := openBlobStore(ctx, target)
	if err != nil {
		return storage.Snapshot{}, err
	}
	defer func() {
		if cerr := closeBlob(); cerr != nil {
			a.logger.Warn("closing export destination failed", zap.Error(cerr))
		}
	}()

	records, err := a.store.ReadAll(ctx)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("read records: %w", err)
	}
	snap, err := storage.WriteSnapshot(ctx, blob, sha256.New(), target.prefix, records, a.clock.Now())
	if err != nil {
		return snap, err
	}
	a.logger.Info("records exported",
		zap.Int("records", snap.Records),
		zap.String("location", snap.URI),
		zap.String("sha256", snap.Checksum),
	)
	return snap, nil
}

type exportTarget struct {
	bucket string
	dir    string
	prefix string
}

func resolveExportTarget(cfg config.ExportConfig, dest string) exportTarget {
	dest = strings.TrimSpace(dest)
	if rest, ok := strings.CutPrefix(dest, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		return exportTarget{bucket: bucket, prefix: strings.Trim(prefix, "/")}
	}
	if dest != "" {
		return exportTarget{dir: dest, prefix: cfg.Prefix}
	}
	return exportTarget{bucket: cfg.GCSBucket, dir: cfg.LocalDir, prefix: cfg.Prefix}
}

func openBlobStore(ctx context.Context, t exportTarget) (storage.BlobStore, func() error, error) {
	if t.bucket != "" {
		blob, err := gcs.Open(ctx, gcs.Config{Bucket: t.bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs export: %w", err)
		}
		return blob, blob.Close, nil
	}
	blob, err := local.New(local.Config{BaseDir: t.dir})
	if err != nil {
		return nil, nil, fmt.Errorf("open local export: %w", err)
	}
	return blob, func() error { return nil }, nil
}

// Close gracefully shuts down all services in the App container. The
// progress hub is drained first so sinks see the final events.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("error closing progress hub", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync errors on stderr are common and not actionable.
	_ = a.logger.Sync()
}

func (a *App) buildHub(ctx context.Context, o options) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, err
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), promSink}

	pub := o.publisher
	if pub == nil && a.cfg.PubSub.ProjectID != "" {
		ps, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		pub = ps
	}
	if pub != nil {
		hubSinks = append(hubSinks, sinks.NewPublisherSink(pub, a.cfg.PubSub.TopicName, a.logger.Named("publisher")))
	}

	return progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:         a.logger.Named("hub"),
	}, hubSinks...), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, clock store.Clock) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(clock), nil
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.DSN, clock)
	case config.DriverPostgres:
		st, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		}, clock)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			return nil, errors.Join(err, st.Close())
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func buildBrowser(cfg config.Config, logger *zap.Logger) (fetcher.Browser, error) {
	if !cfg.Headless.Enabled {
		return fetcher.Disabled{}, nil
	}
	nav, settle, scrollSettle := cfg.HeadlessTimings()
	return headless.New(headless.Config{
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: nav,
		SettleDelay:       settle,
		ScrollBy:          cfg.Headless.ScrollBy,
		ScrollSettle:      scrollSettle,
		MaxParallel:       cfg.Headless.MaxParallel,
	}, logger.Named("headless"))
}

func buildCompleter(cfg config.Config) extract.Completer {
	if cfg.Extract.Provider == config.ProviderAnthropic {
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Extract.APIKey,
			Model:       cfg.Extract.Model,
			BaseURL:     anthropicBaseURL(cfg.Extract.BaseURL),
			MaxTokens:   cfg.Extract.MaxTokens,
			Temperature: cfg.Extract.Temperature,
			MaxRetries:  cfg.Extract.MaxRetries,
		})
	}
	return openai.NewClient(openai.Config{
		BaseURL:     cfg.Extract.BaseURL,
		APIKey:      cfg.Extract.APIKey,
		Model:       cfg.Extract.Model,
		Temperature: cfg.Extract.Temperature,
		Timeout:     cfg.ExtractTimeout(),
		Attempts:    uint(max(cfg.Extract.MaxRetries, 0) + 1),
	})
}

// The default base_url targets a local OpenAI-compatible server and is
// meaningless to the Anthropic SDK.
func anthropicBaseURL(u string) string {
	if u == openai.DefaultBaseURL {
		return ""
	}
	return u
}
