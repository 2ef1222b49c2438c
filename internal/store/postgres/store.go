// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "practitioner_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes records into a single Postgres table keyed by name. Fields and
// assets are stored as JSONB.
type Store struct {
	pool  pgxPool
	table string
	clock store.Clock
}

var _ store.Store = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, clock store.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	st, err := NewWithPool(pool, cfg.Table, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string, clock store.Clock) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = system.New()
	}
	return &Store{pool: pool, table: table, clock: clock}, nil
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	name          TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	initial_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	fields        JSONB NOT NULL DEFAULT '{}'::jsonb,
	source_url    TEXT NOT NULL DEFAULT '',
	assets        JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at    TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Upsert inserts rec or replaces the row stored under rec.Name.
func (s *Store) Upsert(ctx context.Context, rec profile.Record) error {
	if err := store.Validate(rec); err != nil {
		return err
	}
	fieldsJSON, assetsJSON, err := encode(rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	name,
	status,
	initial_score,
	final_score,
	fields,
	source_url,
	assets,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (name) DO UPDATE SET
	status = EXCLUDED.status,
	initial_score = EXCLUDED.initial_score,
	final_score = EXCLUDED.final_score,
	fields = EXCLUDED.fields,
	source_url = EXCLUDED.source_url,
	assets = EXCLUDED.assets,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		rec.Name,
		string(rec.Status),
		rec.InitialScore,
		rec.FinalScore,
		fieldsJSON,
		rec.SourceURL,
		assetsJSON,
		s.clock.Now(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %q: %w", rec.Name, err)
	}
	return nil
}

// Get loads a single record or returns store.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (profile.Record, error) {
	query := fmt.Sprintf(`
SELECT name, status, initial_score, final_score, fields, source_url, assets, updated_at
FROM %s
WHERE name = $1`, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Record{}, store.ErrNotFound
		}
		return profile.Record{}, fmt.Errorf("get record %q: %w", name, err)
	}
	return rec, nil
}

// ReadAll returns every record ordered by name.
func (s *Store) ReadAll(ctx context.Context) ([]profile.Record, error) {
	query := fmt.Sprintf(`
SELECT name, status, initial_score, final_score, fields, source_url, assets, updated_at
FROM %s
ORDER BY name`, s.table)
	rows, err := s.pool.Query(ctx, query)
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
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}
	return nil
}

func encode(rec profile.Record) (fieldsJSON, assetsJSON []byte, err error) {
	fields := rec.Fields
	if fields == nil {
		fields = profile.Fields{}
	}
	fieldsJSON, err = json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	assetsJSON, err = json.Marshal(rec.Assets)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal assets: %w", err)
	}
	return fieldsJSON, assetsJSON, nil
}

func scanRecord(row pgx.Row) (profile.Record, error) {
	var (
		rec        profile.Record
		status     string
		fieldsJSON []byte
		assetsJSON []byte
	)
	if err := row.Scan(
		&rec.Name,
		&status,
		&rec.InitialScore,
		&rec.FinalScore,
		&fieldsJSON,
		&rec.SourceURL,
		&assetsJSON,
		&rec.UpdatedAt,
	); err != nil {
		return profile.Record{}, err
	}
	rec.Status = profile.Status(status)
	if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return profile.Record{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(assetsJSON, &rec.Assets); err != nil {
		return profile.Record{}, fmt.Errorf("unmarshal assets: %w", err)
	}
	return rec, nil
}
