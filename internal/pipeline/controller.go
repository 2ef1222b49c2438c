// Package pipeline runs the four-phase refinery: Discovery, Scoring,
// Enrichment and Verification. The Controller is the only writer of record
// status and scores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/acquire"
	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/fetcher"
	"github.com/JakeFAU/profile-refinery/internal/hunt"
	iduuid "github.com/JakeFAU/profile-refinery/internal/id/uuid"
	"github.com/JakeFAU/profile-refinery/internal/metrics"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/progress"
	"github.com/JakeFAU/profile-refinery/internal/scorer"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

// DefaultEventBuffer is the capacity of the per-run event channel.
const DefaultEventBuffer = 256

// persistTimeout bounds a record write once the run context is detached.
const persistTimeout = 10 * time.Second

// ErrRunInProgress is returned by Run while another run is active.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// Acquirer discovers candidate profiles for one input line.
type Acquirer interface {
	Acquire(ctx context.Context, line string) (acquire.Result, error)
}

// Hunter searches for the fields a profile is missing. line is the full
// input line so the hunt query keeps its qualifiers.
type Hunter interface {
	Hunt(ctx context.Context, line string, missing []string) hunt.Result
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Deps are the collaborators of a Controller. Acquirer, Hunter and Store are
// required; Browser defaults to fetcher.Disabled and Emitter may be nil.
type Deps struct {
	Acquirer Acquirer
	Hunter   Hunter
	Browser  fetcher.Browser
	Store    store.Store
	Emitter  progress.Emitter
	Clock    store.Clock
	IDs      IDGenerator
}

// Config tunes the controller.
type Config struct {
	// Threshold is the minimum score for Verified/Enriched.
	Threshold   float64
	EventBuffer int
}

// Controller owns the stop flag and the stealth browser handle for its runs.
// Only one run may be active at a time.
type Controller struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	stop    atomic.Bool
	running atomic.Bool
}

// New validates deps and builds a Controller.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Controller, error) {
	switch {
	case deps.Acquirer == nil:
		return nil, errors.New("pipeline: acquirer is required")
	case deps.Hunter == nil:
		return nil, errors.New("pipeline: hunter is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Browser == nil {
		deps.Browser = fetcher.Disabled{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = iduuid.New()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = scorer.Threshold
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{deps: deps, cfg: cfg, logger: logger}, nil
}

// Stop asks the active run to wind down. It is polled before each name or
// record and never interrupts an in-flight fetch or extraction.
func (c *Controller) Stop() {
	c.stop.Store(true)
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Run starts a pipeline over lines and returns its progress stream. The
// channel is closed when the run ends, after the Verification phase event.
func (c *Controller) Run(ctx context.Context, lines []string) (<-chan progress.Event, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	runID, err := c.deps.IDs.NewRawID()
	if err != nil {
		c.running.Store(false)
		return nil, fmt.Errorf("pipeline: run id: %w", err)
	}
	c.stop.Store(false)

	out := make(chan progress.Event, c.cfg.EventBuffer)
	r := &run{
		ctx:     ctx,
		id:      progress.UUIDToBytes(runID),
		out:     out,
		emitter: c.deps.Emitter,
		clock:   c.deps.Clock,
		logger:  c.logger.With(zap.String("run_id", runID.String())),
	}
	go c.execute(r, lines)
	return out, nil
}

type candidate struct {
	name    string
	profile profile.Profile
	initial float64
	missing []string
}

func (c *Controller) execute(r *run, lines []string) {
	defer c.running.Store(false)
	defer close(r.out)

	releaseBrowser := sync.OnceFunc(func() {
		if err := c.deps.Browser.Close(); err != nil {
			r.logger.Warn("close stealth browser", zap.Error(err))
		}
	})
	defer releaseBrowser()

	r.phase(progress.PhaseDiscovery)
	if err := c.deps.Browser.Start(r.ctx); err != nil {
		r.logger.Warn("stealth browser unavailable, continuing with fast fetches only", zap.Error(err))
	}

	acquired := c.discover(r, lines)
	if !c.stopped(r.ctx) {
		r.phase(progress.PhaseScoring)
		queue := c.score(r, acquired)
		if len(queue) > 0 && !c.stopped(r.ctx) {
			r.phase(progress.PhaseEnrichment)
			c.enrich(r, queue)
		}
	}

	r.phase(progress.PhaseVerification)
	releaseBrowser()
	if c.stopped(r.ctx) {
		r.logf("", "Pipeline Stopped.")
		return
	}
	r.logf("", "Pipeline Complete.")
}

func (c *Controller) stopped(ctx context.Context) bool {
	return c.stop.Load() || ctx.Err() != nil
}

func (c *Controller) discover(r *run, lines []string) []candidate {
	var acquired []candidate
	total := len(lines)
	for i, line := range lines {
		if c.stopped(r.ctx) {
			r.logf("", "Stop requested, skipping %d remaining names", total-i)
			break
		}
		// Records are keyed by the whole line; two people sharing a name
		// are told apart by their qualifiers.
		if name, _ := acquire.ParseLine(line); name == "" {
			continue
		}
		key := strings.TrimSpace(line)
		r.logf(key, "[%d/%d] Scraping: %s", i+1, total, key)

		start := time.Now()
		res, err := c.deps.Acquirer.Acquire(r.ctx, key)
		elapsed := time.Since(start)
		for _, attempt := range res.Attempts {
			r.logger.Debug("acquisition attempt",
				zap.String("name", key),
				zap.String("url", attempt.URL),
				zap.String("outcome", string(attempt.Outcome)),
				zap.Error(attempt.Err),
			)
		}
		if err != nil {
			r.logf(key, "Error: %v", err)
			c.persist(r, profile.Record{Name: key, Status: profile.StatusFailed}, elapsed)
			continue
		}
		best, ok := res.Best()
		if !ok {
			r.logf(key, "No data found for %s", key)
			c.persist(r, profile.Record{Name: key, Status: profile.StatusFailed}, elapsed)
			continue
		}
		c.persist(r, profile.NewRecord(key, profile.StatusPending, 0, 0, best), elapsed)
		acquired = append(acquired, candidate{name: key, profile: best})
	}
	return acquired
}

func (c *Controller) score(r *run, acquired []candidate) []candidate {
	var queue []candidate
	for _, cand := range acquired {
		if c.stopped(r.ctx) {
			break
		}
		score, breakdown := scorer.Evaluate(cand.profile)
		if score >= c.cfg.Threshold {
			r.logf(cand.name, "Verified: %s (%s)", cand.name, percent(score))
			c.persist(r, profile.NewRecord(cand.name, profile.StatusVerified, score, score, cand.profile), 0)
			continue
		}
		cand.initial = score
		cand.missing = scorer.MissingFields(breakdown)
		r.logf(cand.name, "Low Score: %s (%s) -> Queued", cand.name, percent(score))
		c.persist(r, profile.NewRecord(cand.name, profile.StatusPending, score, 0, cand.profile), 0)
		queue = append(queue, cand)
	}
	return queue
}

func (c *Controller) enrich(r *run, queue []candidate) {
	for _, cand := range queue {
		if c.stopped(r.ctx) {
			break
		}
		r.logf(cand.name, "Deep Searching for %s...", cand.name)

		start := time.Now()
		res := c.deps.Hunter.Hunt(r.ctx, cand.name, cand.missing)
		elapsed := time.Since(start)

		merged := cand.profile.Clone()
		if len(res.Found) > 0 {
			keys := res.Found.Keys()
			r.logf(cand.name, "+ Found: [%s]", strings.Join(keys, ", "))
			metrics.ObserveHuntFields(keys)
			merged.Fields.Merge(res.Found)
		}

		final, _ := scorer.Evaluate(merged)
		status := profile.StatusManualReview
		if final >= c.cfg.Threshold {
			status = profile.StatusEnriched
		}
		r.logf(cand.name, "Final: %s -> %s", cand.name, percent(final))
		c.persist(r, profile.NewRecord(cand.name, status, cand.initial, final, merged), elapsed)
	}
}

// persist writes rec and reports it on the stream. The write is detached
// from run cancellation so work finished before a stop is kept. Store
// failures are reported as a progress line and never abort the run.
func (c *Controller) persist(r *run, rec profile.Record, dur time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), persistTimeout)
	defer cancel()
	if err := c.deps.Store.Upsert(ctx, rec); err != nil {
		r.logger.Error("store upsert failed", zap.String("name", rec.Name), zap.Error(err))
		r.logf(rec.Name, "Error: saving %s: %v", rec.Name, err)
		return
	}
	score := rec.FinalScore
	if rec.Status == profile.StatusPending {
		score = rec.InitialScore
	}
	r.emit(progress.Event{
		Kind:   progress.KindRecord,
		Name:   rec.Name,
		Status: rec.Status,
		Score:  score,
		Dur:    dur,
	})
}

func percent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}
