package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// Kind tags what an Event carries.
type Kind string

// Event kinds.
const (
	// KindPhase announces that the run entered Phase.
	KindPhase Kind = "phase"
	// KindLog is a human-readable progress line, optionally scoped to Name.
	KindLog Kind = "log"
	// KindRecord reports a persisted record state for Name.
	KindRecord Kind = "record"
)

// Phase is a pipeline stage.
type Phase int

// Pipeline phases, in execution order.
const (
	PhaseDiscovery    Phase = 1
	PhaseScoring      Phase = 2
	PhaseEnrichment   Phase = 3
	PhaseVerification Phase = 4
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovery:
		return "Discovery"
	case PhaseScoring:
		return "Scoring"
	case PhaseEnrichment:
		return "Enrichment"
	case PhaseVerification:
		return "Verification"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Event is one entry of a run's progress stream.
type Event struct {
	// RunID identifies the pipeline run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Kind  Kind
	Phase Phase
	Text  string
	// Name is the input name the event concerns, if any.
	Name   string
	Status profile.Status
	Score  float64
	// Dur captures step latency, e.g. an acquisition or a hunt.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindPhase:
		if e.Phase < PhaseDiscovery || e.Phase > PhaseVerification {
			return fmt.Errorf("phase %d out of range", e.Phase)
		}
	case KindLog:
		if e.Text == "" {
			return errors.New("log event requires text")
		}
	case KindRecord:
		if e.Name == "" {
			return errors.New("record event requires name")
		}
		if !e.Status.Valid() {
			return fmt.Errorf("record event has unknown status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Score < 0 || e.Score > 1 {
		return errors.New("score must be within [0, 1]")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
