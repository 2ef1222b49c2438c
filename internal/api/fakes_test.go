package api

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/pipeline"
	"github.com/JakeFAU/profile-refinery/internal/progress"
)

type fakeRunner struct {
	mu      sync.Mutex
	running atomic.Bool
	stopped atomic.Int32
	lines   []string
	events  []progress.Event
	err     error
}

func (f *fakeRunner) Run(_ context.Context, lines []string) (<-chan progress.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.running.CompareAndSwap(false, true) {
		return nil, pipeline.ErrRunInProgress
	}
	f.mu.Lock()
	f.lines = append([]string(nil), lines...)
	f.mu.Unlock()
	ch := make(chan progress.Event, len(f.events))
	for _, evt := range f.events {
		ch <- evt
	}
	close(ch)
	return ch, nil
}

func (f *fakeRunner) Stop() { f.stopped.Add(1) }

func (f *fakeRunner) Running() bool { return f.running.Load() }

func (f *fakeRunner) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

// queuedRunner hands out pre-built channels, one per Run, so a test controls
// when each run's stream ends.
type queuedRunner struct {
	mu    sync.Mutex
	queue []chan progress.Event
}

func (q *queuedRunner) Run(context.Context, []string) (<-chan progress.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := q.queue[0]
	q.queue = q.queue[1:]
	return ch, nil
}

func (q *queuedRunner) Stop() {}

func (q *queuedRunner) Running() bool { return false }
