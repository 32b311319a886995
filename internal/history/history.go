// Package history archives readings in SQLite for later inspection.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

const (
	defaultLimit = 50
	maxLimit     = 1000

	// timeLayout is fixed width so recorded_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Store is a report.Sink that appends every reading to reading_history.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

var _ report.Sink = (*Store)(nil)

// NewStore creates a store on db. A nil clock means the wall clock.
func NewStore(db *sql.DB, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{db: db, clock: clk}
}

// Write inserts readings in one transaction.
func (s *Store) Write(ctx context.Context, readings []report.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reading_history (boot, sensor, channel, idx, value, status, unit, count, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		at := r.Time
		if at.IsZero() {
			at = s.clock.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.Boot, r.Sensor, r.Channel, r.Index, r.Value,
			r.Status, r.Unit, r.Count, at.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("inserting reading for %s: %w", r.Sensor, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing readings: %w", err)
	}
	return nil
}

// Recent returns the latest readings of a sensor, newest first. limit
// defaults to 50 and is capped at 1000.
func (s *Store) Recent(ctx context.Context, sensor string, limit int) ([]report.Reading, error) {
	if sensor == "" {
		return nil, fmt.Errorf("sensor name is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT boot, sensor, channel, idx, value, status, unit, count, recorded_at
		 FROM reading_history
		 WHERE sensor = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		sensor, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reading history: %w", err)
	}
	defer rows.Close()

	out := make([]report.Reading, 0, limit)
	for rows.Next() {
		var r report.Reading
		var at string
		if err := rows.Scan(&r.Boot, &r.Sensor, &r.Channel, &r.Index, &r.Value,
			&r.Status, &r.Unit, &r.Count, &at); err != nil {
			return nil, fmt.Errorf("scanning reading history: %w", err)
		}
		if r.Time, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reading history: %w", err)
	}
	return out, nil
}

// Prune deletes readings older than retention and returns how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := s.clock.Now().UTC().Add(-retention).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, "DELETE FROM reading_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning reading history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// PruneLoop prunes once per interval until ctx is done.
func (s *Store) PruneLoop(ctx context.Context, interval, retention time.Duration, logf func(msg string, args ...any)) {
	t := s.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Prune(ctx, retention)
			if err != nil {
				logf("pruning reading history failed", "error", err)
				continue
			}
			if n > 0 {
				logf("pruned reading history", "rows", n)
			}
		}
	}
}
