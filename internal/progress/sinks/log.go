package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/progress"
)

// LogSink writes each event as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Kind {
		case progress.KindPhase:
			fields = append(fields, zap.Stringer("phase", evt.Phase))
		case progress.KindLog:
			fields = append(fields, zap.String("text", evt.Text))
		case progress.KindRecord:
			fields = append(fields,
				zap.String("status", string(evt.Status)),
				zap.Float64("score", evt.Score),
			)
		}
		if evt.Name != "" {
			fields = append(fields, zap.String("name", evt.Name))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
