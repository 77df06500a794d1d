// Package repository contains data access logic for performances, venues
// and their generated schedules.  All repositories target MySQL through
// database/sql; see internal/database for the connection and schema.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"encoding/json"
	"errors" // errors for sentinel comparisons
	"time"

	"github.com/iliyamo/showtime-sync/internal/model"
)

// PerformanceRepo manages persistence for performances.
type PerformanceRepo struct {
	db *sql.DB
}

// NewPerformanceRepo constructs a PerformanceRepo with the given DB handle.
func NewPerformanceRepo(db *sql.DB) *PerformanceRepo {
	return &PerformanceRepo{db: db}
}

const performanceColumns = `performance_id, title, venue_id, schedule, start_date, end_date, cast_json, schedules`

// List returns every performance ordered by id.  When no rows exist it
// returns an empty slice and nil error.
func (r *PerformanceRepo) List(ctx context.Context) ([]model.Performance, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+performanceColumns+` FROM performances ORDER BY performance_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Performance{}
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID retrieves a performance.  It returns ErrPerformanceNotFound if
// there is no matching row.
func (r *PerformanceRepo) GetByID(ctx context.Context, id string) (*model.Performance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+performanceColumns+` FROM performances WHERE performance_id = ?`, id)
	p, err := scanPerformance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdateSummary overwrites only the denormalized schedules column.  Other
// columns are left untouched.  MySQL reports zero affected rows when the
// value is unchanged, so a missing row is detected with a separate probe.
func (r *PerformanceRepo) UpdateSummary(ctx context.Context, performanceID string, summary []model.DaySchedule) error {
	if err := updateSummary(ctx, r.db, performanceID, summary); err != nil {
		return err
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM performances WHERE performance_id = ? LIMIT 1`, performanceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPerformanceNotFound
	}
	return err
}

func updateSummary(ctx context.Context, q execQuerier, performanceID string, summary []model.DaySchedule) error {
	if summary == nil {
		summary = []model.DaySchedule{}
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE performances SET schedules = ? WHERE performance_id = ?`, data, performanceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerformance(s rowScanner) (*model.Performance, error) {
	var (
		p          model.Performance
		venueID    sql.NullString
		rule       sql.NullString
		start, end time.Time
		cast       []byte
		summary    []byte
	)
	if err := s.Scan(&p.PerformanceID, &p.Title, &venueID, &rule, &start, &end, &cast, &summary); err != nil {
		return nil, err
	}
	p.VenueID = venueID.String
	p.Schedule = rule.String
	p.StartDate = start.Format("2006-01-02")
	p.EndDate = end.Format("2006-01-02")
	if len(cast) > 0 {
		p.Cast = json.RawMessage(cast)
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &p.Schedules); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
