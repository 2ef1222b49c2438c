package profile

import "time"

// Outcome classifies what happened to a single URL during acquisition or a hunt.
type Outcome string

// Per-URL outcomes.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeNoContent Outcome = "no_content"
	OutcomeMalformed Outcome = "malformed"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeEmpty     Outcome = "empty"
	OutcomeSkipped   Outcome = "skipped"
)

// Attempt records one URL visit. It replaces silent exception swallowing with
// an explicit trail the controller can report.
type Attempt struct {
	URL      string
	Outcome  Outcome
	Tier     int
	Score    int
	Name     string
	Found    []string
	Err      error
	Duration time.Duration
}
