package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/progress"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

// run carries the per-run stream and identity.
type run struct {
	ctx     context.Context
	id      [16]byte
	out     chan progress.Event
	emitter progress.Emitter
	clock   store.Clock
	logger  *zap.Logger
}

func (r *run) phase(p progress.Phase) {
	r.logger.Info("phase", zap.Stringer("phase", p))
	r.emit(progress.Event{Kind: progress.KindPhase, Phase: p})
}

func (r *run) logf(name, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	r.logger.Debug(text, zap.String("name", name))
	r.emit(progress.Event{Kind: progress.KindLog, Name: name, Text: text})
}

// emit stamps evt, forwards it to the observability hub and delivers it to
// the run's consumer. Once ctx is done an event is dropped if the consumer is
// not keeping up, so a vanished reader cannot wedge shutdown.
func (r *run) emit(evt progress.Event) {
	evt.RunID = r.id
	evt.TS = r.clock.Now()
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
	select {
	case r.out <- evt:
		return
	default:
	}
	select {
	case r.out <- evt:
	case <-r.ctx.Done():
		r.logger.Warn("progress event dropped", zap.String("kind", string(evt.Kind)))
	}
}
