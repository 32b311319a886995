package calibration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
)

// Entry is a calibration record with its bookkeeping columns.
type Entry struct {
	Key       uint32    `json:"key"`
	Enabled   bool      `json:"enabled"`
	Offset    int16     `json:"offset"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed calibration store.
type Store struct {
	db *sql.DB
}

var _ policy.CalibrationStore = (*Store)(nil)

// NewStore creates a store on db. The calibration table must exist.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Calibration implements policy.CalibrationStore.
func (s *Store) Calibration(ctx context.Context, key uint32) (policy.CalibrationRecord, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return policy.CalibrationRecord{}, err
	}
	return policy.CalibrationRecord{Enabled: e.Enabled, Offset: e.Offset}, nil
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key uint32) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT cal_key, enabled, cal_offset, note, updated_at FROM calibration WHERE cal_key = ?", key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("key %d: %w", key, policy.ErrCalibrationNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading calibration %d: %w", key, err)
	}
	return e, nil
}

// Set creates or replaces the entry under e.Key.
func (s *Store) Set(ctx context.Context, e Entry) error {
	if e.Key == 0 {
		return policy.ErrNoCalibrationKey
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration (cal_key, enabled, cal_offset, note, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cal_key) DO UPDATE SET
		     enabled = excluded.enabled,
		     cal_offset = excluded.cal_offset,
		     note = excluded.note,
		     updated_at = excluded.updated_at`,
		e.Key, boolToInt(e.Enabled), e.Offset, e.Note, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing calibration %d: %w", e.Key, err)
	}
	return nil
}

// Delete removes the entry under key.
func (s *Store) Delete(ctx context.Context, key uint32) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calibration WHERE cal_key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting calibration %d: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("key %d: %w", key, policy.ErrCalibrationNotFound)
	}
	return nil
}

// List returns every entry ordered by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cal_key, enabled, cal_offset, note, updated_at FROM calibration ORDER BY cal_key")
	if err != nil {
		return nil, fmt.Errorf("querying calibration: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning calibration: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calibration: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e         Entry
		enabled   int
		updatedAt string
	)
	if err := sc.Scan(&e.Key, &enabled, &e.Offset, &e.Note, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.Enabled = enabled != 0
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Written by us
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
