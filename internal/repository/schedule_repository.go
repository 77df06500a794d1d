package repository // repository for generated schedule slots

import (
	"context"      // context for managing deadlines
	"database/sql" // sql provides DB interfaces
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/showtime-sync/internal/model"
)

// bulkChunk caps the number of rows per multi-row INSERT or IN (...) list
// so statements stay well below max_allowed_packet and the placeholder limit.
const bulkChunk = 500

// execQuerier is satisfied by both *sql.DB and *sql.Tx so the same
// statements can run inside or outside a transaction.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ScheduleRepo encapsulates database operations for the schedules table.
// Every row belongs to exactly one performance; schedule_id is the
// "{performanceId}-{date}-{time}" key and performance_id is indexed.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo constructs a ScheduleRepo given a DB handle.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// KeysByPerformance returns the schedule_id of every slot stored for the
// performance.  The lookup filters on performance_id rather than on a key
// prefix, because one performance id may be a prefix of another.
func (r *ScheduleRepo) KeysByPerformance(ctx context.Context, performanceID string) ([]string, error) {
	return keysByPerformance(ctx, r.db, performanceID)
}

// DeleteByKeys removes the given slots in chunked bulk statements and
// returns how many rows were deleted.  An empty slice is a no-op.
func (r *ScheduleRepo) DeleteByKeys(ctx context.Context, keys []string) (int64, error) {
	return deleteByKeys(ctx, r.db, keys)
}

// CreateBulk inserts slots with multi-row INSERT statements.  Passing an
// empty slice has no effect and returns nil.
func (r *ScheduleRepo) CreateBulk(ctx context.Context, slots []model.Schedule) error {
	return createBulk(ctx, r.db, slots)
}

// ListByPerformance returns the stored slots of a performance ordered by
// date and time.
func (r *ScheduleRepo) ListByPerformance(ctx context.Context, performanceID string) ([]model.Schedule, error) {
	const q = `SELECT schedule_id, performance_id, show_date, show_time, show_datetime, day_of_week,
                      available_seats, total_seats, status, casting, created_at
               FROM schedules
               WHERE performance_id = ?
               ORDER BY show_datetime ASC`
	rows, err := r.db.QueryContext(ctx, q, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Schedule
	for rows.Next() {
		var (
			s       model.Schedule
			date    time.Time
			casting []byte
		)
		if err := rows.Scan(
			&s.ScheduleID, &s.PerformanceID, &date, &s.Time, &s.DateTime, &s.DayOfWeek,
			&s.AvailableSeats, &s.TotalSeats, &s.Status, &casting, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Date = date.Format("2006-01-02")
		if len(casting) > 0 {
			s.Casting = json.RawMessage(casting)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceForPerformance swaps the full slot set of one performance and its
// denormalized summary inside a single transaction: the old keys are read
// and deleted, the new slots inserted and performances.schedules updated.
// Either all of it becomes visible or none of it does.  A missing
// performance row yields ErrPerformanceNotFound and nothing is written.  It returns the
// number of slots removed.
func (r *ScheduleRepo) ReplaceForPerformance(ctx context.Context, performanceID string, slots []model.Schedule, summary []model.DaySchedule) (deleted int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	// Ensure rollback or commit at the end
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	// Lock the owning row; without it the slots would have no summary owner.
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM performances WHERE performance_id = ? FOR UPDATE`, performanceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPerformanceNotFound
	}
	if err != nil {
		return 0, err
	}

	keys, err := keysByPerformance(ctx, tx, performanceID)
	if err != nil {
		return 0, err
	}
	if deleted, err = deleteByKeys(ctx, tx, keys); err != nil {
		return 0, err
	}
	if err = createBulk(ctx, tx, slots); err != nil {
		return 0, err
	}
	if err = updateSummary(ctx, tx, performanceID, summary); err != nil {
		return 0, err
	}
	return deleted, nil
}

func keysByPerformance(ctx context.Context, q execQuerier, performanceID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT schedule_id FROM schedules WHERE performance_id = ?`, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func deleteByKeys(ctx context.Context, q execQuerier, keys []string) (int64, error) {
	var total int64
	for start := 0; start < len(keys); start += bulkChunk {
		end := min(start+bulkChunk, len(keys))
		chunk := keys[start:end]
		query := `DELETE FROM schedules WHERE schedule_id IN (` + placeholders(len(chunk), "?") + `)`
		args := make([]any, 0, len(chunk))
		for _, k := range chunk {
			args = append(args, k)
		}
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func createBulk(ctx context.Context, q execQuerier, slots []model.Schedule) error {
	const cols = 11
	for start := 0; start < len(slots); start += bulkChunk {
		end := min(start+bulkChunk, len(slots))
		chunk := slots[start:end]
		// Build the INSERT with one placeholder group per slot.
		query := `INSERT INTO schedules (schedule_id, performance_id, show_date, show_time, show_datetime, day_of_week,
                  available_seats, total_seats, status, casting, created_at) VALUES ` +
			placeholders(len(chunk), "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args := make([]any, 0, len(chunk)*cols)
		for _, s := range chunk {
			var casting any
			if len(s.Casting) > 0 {
				casting = []byte(s.Casting)
			}
			args = append(args, s.ScheduleID, s.PerformanceID, s.Date, s.Time, s.DateTime, s.DayOfWeek,
				s.AvailableSeats, s.TotalSeats, s.Status, casting, s.CreatedAt.UTC())
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// placeholders repeats group n times, comma separated.
func placeholders(n int, group string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}
