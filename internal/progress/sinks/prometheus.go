package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/profile-refinery/internal/progress"
)

// PrometheusSink exports run and record progress via Prometheus.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	currentPhase  prometheus.Gauge
	records       *prometheus.CounterVec
	recordScores  *prometheus.HistogramVec
	stepDuration  prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refinery_runs_started_total",
			Help: "Pipeline runs that entered Discovery.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refinery_runs_completed_total",
			Help: "Pipeline runs that reached Verification.",
		}),
		currentPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "refinery_run_phase",
			Help: "Phase of the most recent run (1 Discovery .. 4 Verification).",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_records_total",
			Help: "Record writes partitioned by status.",
		}, []string{"status"}),
		recordScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refinery_record_score",
			Help:    "Confidence score at each record write, partitioned by status.",
			Buckets: []float64{0.1, 0.2, 0.35, 0.5, 0.65, 0.8, 0.9, 1},
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "refinery_step_duration_seconds",
			Help:    "Duration of timed per-record steps.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.currentPhase,
		s.records,
		s.recordScores,
		s.stepDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindPhase:
			s.currentPhase.Set(float64(evt.Phase))
			switch evt.Phase {
			case progress.PhaseDiscovery:
				s.runsStarted.Inc()
			case progress.PhaseVerification:
				s.runsCompleted.Inc()
			}
		case progress.KindRecord:
			status := string(evt.Status)
			s.records.WithLabelValues(status).Inc()
			s.recordScores.WithLabelValues(status).Observe(evt.Score)
		}
		if evt.Dur > 0 {
			s.stepDuration.Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
