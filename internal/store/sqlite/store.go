// Package sqlite provides a file-backed record store on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

const migration = `
CREATE TABLE IF NOT EXISTS records (
	name          TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	initial_score REAL NOT NULL DEFAULT 0,
	final_score   REAL NOT NULL DEFAULT 0,
	fields        TEXT NOT NULL DEFAULT '{}',
	source_url    TEXT NOT NULL DEFAULT '',
	assets        TEXT NOT NULL DEFAULT '{}',
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
`

const selectColumns = `SELECT name, status, initial_score, final_score, fields, source_url, assets, updated_at FROM records`

// Store persists records in a single SQLite table.
type Store struct {
	db    *sql.DB
	clock store.Clock
}

var _ store.Store = (*Store)(nil)

// New opens the database at dsn, configures WAL mode and applies the schema.
func New(ctx context.Context, dsn string, clock store.Clock) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("store.dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if clock == nil {
		clock = system.New()
	}
	return &Store{db: db, clock: clock}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Upsert inserts rec or replaces the row stored under rec.Name.
func (s *Store) Upsert(ctx context.Context, rec profile.Record) error {
	if err := store.Validate(rec); err != nil {
		return err
	}
	fields := rec.Fields
	if fields == nil {
		fields = profile.Fields{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	assetsJSON, err := json.Marshal(rec.Assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO records (name, status, initial_score, final_score, fields, source_url, assets, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	status = excluded.status,
	initial_score = excluded.initial_score,
	final_score = excluded.final_score,
	fields = excluded.fields,
	source_url = excluded.source_url,
	assets = excluded.assets,
	updated_at = excluded.updated_at`,
		rec.Name,
		string(rec.Status),
		rec.InitialScore,
		rec.FinalScore,
		string(fieldsJSON),
		rec.SourceURL,
		string(assetsJSON),
		s.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert record %q: %w", rec.Name, err)
	}
	return nil
}

// Get loads a single record or returns store.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (profile.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.Record{}, store.ErrNotFound
		}
		return profile.Record{}, fmt.Errorf("get record %q: %w", name, err)
	}
	return rec, nil
}

// ReadAll returns every record ordered by name.
func (s *Store) ReadAll(ctx context.Context) ([]profile.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []profile.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (profile.Record, error) {
	var (
		rec        profile.Record
		status     string
		fieldsJSON string
		assetsJSON string
		updatedAt  string
	)
	if err := row.Scan(
		&rec.Name,
		&status,
		&rec.InitialScore,
		&rec.FinalScore,
		&fieldsJSON,
		&rec.SourceURL,
		&assetsJSON,
		&updatedAt,
	); err != nil {
		return profile.Record{}, err
	}
	rec.Status = profile.Status(status)
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return profile.Record{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal([]byte(assetsJSON), &rec.Assets); err != nil {
		return profile.Record{}, fmt.Errorf("unmarshal assets: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return profile.Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = ts
	return rec, nil
}
