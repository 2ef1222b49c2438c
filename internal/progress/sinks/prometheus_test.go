package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindPhase, Phase: progress.PhaseDiscovery},
		{RunID: runID, TS: now, Kind: progress.KindRecord, Name: "Dr. Jane Doe", Status: profile.StatusPending, Dur: 3 * time.Second},
		{RunID: runID, TS: now, Kind: progress.KindRecord, Name: "Dr. Jane Doe", Status: profile.StatusManualReview, Score: 0.55},
		{RunID: runID, TS: now, Kind: progress.KindRecord, Name: "Dr. John Roe", Status: profile.StatusVerified, Score: 0.85},
		{RunID: runID, TS: now, Kind: progress.KindPhase, Phase: progress.PhaseVerification},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted), 1e-9)
	require.InDelta(t, 4.0, testutil.ToFloat64(sink.currentPhase), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("Manual_Review")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("Verified")), 1e-9)
	require.Equal(t, 3, testutil.CollectAndCount(sink.recordScores, "refinery_record_score"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.stepDuration, "refinery_step_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
