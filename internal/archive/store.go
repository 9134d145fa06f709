// Package archive keeps every report the service has seen in Postgres/PostGIS.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alarm/live/internal/report"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDisabled is returned by a nil Store.
var ErrDisabled = errors.New("report archive is disabled")

// Pool is the subset of pgxpool.Pool used by the store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Entry is an archived report with the window in which it was listed.
type Entry struct {
	report.Details
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Store reads and writes archived reports.
type Store struct {
	pool Pool
}

// New wraps a pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

const upsertReport = `
INSERT INTO reports (id, title, description, date_text, type, location, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $8)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    date_text = EXCLUDED.date_text,
    type = EXCLUDED.type,
    location = EXCLUDED.location,
    last_seen_at = EXCLUDED.last_seen_at`

const listRecent = `
SELECT id,
       title,
       description,
       date_text,
       type,
       COALESCE(ST_Y(location::geometry), 0)::double precision AS latitude,
       COALESCE(ST_X(location::geometry), 0)::double precision AS longitude,
       first_seen_at,
       last_seen_at
FROM reports
ORDER BY last_seen_at DESC, id ASC
LIMIT $1`

// SaveReports upserts reports in one transaction. first_seen_at is kept from
// the first insert; a (0,0) location is stored as NULL.
func (s *Store) SaveReports(ctx context.Context, reports []report.Details, seenAt time.Time) (int, error) {
	if s == nil {
		return 0, ErrDisabled
	}
	if len(reports) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}

	seenAt = seenAt.UTC()
	for _, r := range reports {
		var lon, lat *float64
		if !r.Location.IsZero() {
			lo, la := r.Location.Lon(), r.Location.Lat()
			lon, lat = &lo, &la
		}
		if _, err := tx.Exec(ctx, upsertReport,
			r.ID, r.Title, r.Description, r.Date, string(r.Type), lon, lat, seenAt,
		); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("upsert report %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	return len(reports), nil
}

// ListRecent returns the most recently seen reports first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, ErrDisabled
	}

	rows, err := s.pool.Query(ctx, listRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			typ      string
			lat, lon float64
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &typ, &lat, &lon, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.Type = report.Type(typ)
		e.Location = report.Location{lat, lon}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}
