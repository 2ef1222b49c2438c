// Package store declares the persistence contract for practitioner records.
// Implementations live in subpackages (memory, postgres, sqlite); this package
// must not import database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists one record per input name. Upsert replaces the full record
// and stamps UpdatedAt; ReadAll returns records ordered by name.
type Store interface {
	Upsert(ctx context.Context, rec profile.Record) error
	Get(ctx context.Context, name string) (profile.Record, error)
	ReadAll(ctx context.Context) ([]profile.Record, error)
	Clear(ctx context.Context) error
	Close() error
}

// Clock supplies UpdatedAt timestamps.
type Clock interface {
	Now() time.Time
}

// Stats summarizes records by status.
type Stats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Verified     int `json:"verified"`
	Enriched     int `json:"enriched"`
	ManualReview int `json:"manual_review"`
	Failed       int `json:"failed"`
}

// Summarize counts records by status.
func Summarize(records []profile.Record) Stats {
	stats := Stats{Total: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case profile.StatusPending:
			stats.Pending++
		case profile.StatusVerified:
			stats.Verified++
		case profile.StatusEnriched:
			stats.Enriched++
		case profile.StatusManualReview:
			stats.ManualReview++
		case profile.StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Validate rejects records that cannot be keyed or carry an unknown status.
func Validate(rec profile.Record) error {
	if rec.Name == "" {
		return errors.New("record name is required")
	}
	if !rec.Status.Valid() {
		return errors.New("record status " + string(rec.Status) + " is not valid")
	}
	if rec.InitialScore < 0 || rec.InitialScore > 1 || rec.FinalScore < 0 || rec.FinalScore > 1 {
		return errors.New("record scores must be within [0, 1]")
	}
	return nil
}
