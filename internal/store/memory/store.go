// Package memory provides an in-process record store for development and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

// Store keeps records in a map guarded by a RWMutex. Records are cloned on the
// way in and out so callers never share field storage with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]profile.Record
	clock   store.Clock
}

var _ store.Store = (*Store)(nil)

// New constructs a Store. A nil clock uses the system clock.
func New(clock store.Clock) *Store {
	if clock == nil {
		clock = system.New()
	}
	return &Store{
		records: make(map[string]profile.Record),
		clock:   clock,
	}
}

// Upsert replaces the record stored under rec.Name.
func (s *Store) Upsert(ctx context.Context, rec profile.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Validate(rec); err != nil {
		return err
	}
	rec = cloneRecord(rec)
	rec.UpdatedAt = s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
	return nil
}

// Get returns the record for name or store.ErrNotFound.
func (s *Store) Get(_ context.Context, name string) (profile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return profile.Record{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// ReadAll returns every record ordered by name.
func (s *Store) ReadAll(ctx context.Context) ([]profile.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]profile.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b profile.Record) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Clear removes every record.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.records)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneRecord(rec profile.Record) profile.Record {
	rec.Fields = rec.Fields.Clone()
	rec.Assets = rec.Assets.Clone()
	return rec
}
