package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers serve plain reads and transactional work.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const scheduleColumns = `id, explanation_id, round_no, start_at, end_at, location,
	apply_start_at, apply_end_at, capacity, reserved_count, status, created_at, updated_at`

// ScheduleRepo manages persistence for explanation schedules (rounds).
// reserved_count is written only through UpdateCounterTx.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo constructs a ScheduleRepo with the given DB handle.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// DB exposes the underlying sql.DB so callers can begin transactions that
// span several repositories.
func (r *ScheduleRepo) DB() *sql.DB {
	return r.db
}

func scanSchedule(sc rowScanner) (model.Schedule, error) {
	var (
		s        model.Schedule
		capacity sql.NullInt64
		status   string
	)
	err := sc.Scan(
		&s.ID,
		&s.EventID,
		&s.RoundNo,
		&s.StartAt,
		&s.EndAt,
		&s.Location,
		&s.ApplyStartAt,
		&s.ApplyEndAt,
		&capacity,
		&s.ReservedCount,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.Schedule{}, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		s.Capacity = &c
	}
	s.Status = model.ScheduleStatus(status)
	return s, nil
}

func nullableCapacity(c *int) any {
	if c == nil {
		return nil
	}
	return *c
}

// Create inserts a new schedule and reloads it so DB defaults and the
// generated ID are populated on s. reserved_count always starts at zero.
func (r *ScheduleRepo) Create(ctx context.Context, s *model.Schedule, actorID uint64) error {
	const q = `INSERT INTO explanation_schedules
		(explanation_id, round_no, start_at, end_at, location, apply_start_at, apply_end_at, capacity, reserved_count, status, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.EventID, s.RoundNo, s.StartAt, s.EndAt, s.Location,
		s.ApplyStartAt, s.ApplyEndAt, nullableCapacity(s.Capacity), string(s.Status), actorID, actorID)
	if err != nil {
		return mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.get(ctx, r.db, uint64(id), false)
	if err != nil {
		return err
	}
	*s = created
	return nil
}

// GetByID retrieves a schedule without locking. ErrNotFound when missing.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uint64) (model.Schedule, error) {
	return r.get(ctx, r.db, id, false)
}

// GetForUpdateTx reads the schedule with SELECT ... FOR UPDATE, blocking
// until the row lock is granted or innodb_lock_wait_timeout elapses
// (ErrLockTimeout). The lock is held until tx ends.
func (r *ScheduleRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Schedule, error) {
	return r.get(ctx, tx, id, true)
}

func (r *ScheduleRepo) get(ctx context.Context, q queryer, id uint64, forUpdate bool) (model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM explanation_schedules WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSchedule(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Schedule{}, mapDBError(err)
	}
	return s, nil
}

// ListByEvent returns every schedule of an event ordered by round number.
func (r *ScheduleRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Schedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM explanation_schedules
		WHERE explanation_id = ? ORDER BY round_no ASC`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByEvents returns the schedules of several events keyed by event id,
// each slice ordered by round number.
func (r *ScheduleRepo) ListByEvents(ctx context.Context, eventIDs []uint64) (map[uint64][]model.Schedule, error) {
	out := make(map[uint64][]model.Schedule, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	cond, args := Where(In("explanation_id", eventIDs...))
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM explanation_schedules
		WHERE `+cond+` ORDER BY explanation_id ASC, round_no ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out[s.EventID] = append(out[s.EventID], s)
	}
	return out, rows.Err()
}

// RoundExists reports whether another schedule of the event already uses
// roundNo. excludeID lets updates ignore the row being edited.
func (r *ScheduleRepo) RoundExists(ctx context.Context, eventID uint64, roundNo int, excludeID uint64) (bool, error) {
	const q = `SELECT 1 FROM explanation_schedules
		WHERE explanation_id = ? AND round_no = ? AND id <> ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, eventID, roundNo, excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateCounterTx writes the reserved counter and cached status. Only the
// reservation coordinator calls this, inside the transaction that holds the
// row lock from GetForUpdateTx.
func (r *ScheduleRepo) UpdateCounterTx(ctx context.Context, tx *sql.Tx, id uint64, reserved int, status model.ScheduleStatus) error {
	const q = `UPDATE explanation_schedules
		SET reserved_count = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, reserved, string(status), id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDetailsTx writes the admin-editable fields of a locked schedule and
// its refreshed cached status. reserved_count is never touched here.
func (r *ScheduleRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, s model.Schedule, actorID uint64) error {
	const q = `UPDATE explanation_schedules
		SET round_no = ?, start_at = ?, end_at = ?, location = ?, apply_start_at = ?, apply_end_at = ?,
		    capacity = ?, status = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		s.RoundNo, s.StartAt, s.EndAt, s.Location, s.ApplyStartAt, s.ApplyEndAt,
		nullableCapacity(s.Capacity), string(s.Status), actorID, s.ID)
	return mapDBError(err)
}

// DeleteTx removes a schedule that no reservation references. A schedule
// with reservations (in any status) is kept for audit and ErrConflict
// is returned.
func (r *ScheduleRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM explanation_reservations WHERE schedule_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM explanation_schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
