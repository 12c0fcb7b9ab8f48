package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

const reservationColumns = `id, schedule_id, applicant_name, applicant_phone, student_name, student_phone,
	gender, academic_track, school_name, grade, memo, is_marketing_agree, client_ip, status,
	canceled_by, canceled_at, created_at, updated_at`

// ReservationRepo manages persistence for explanation reservations. Rows
// are never deleted; cancellation is a status transition.
type ReservationRepo struct{ db *sql.DB }

// NewReservationRepo constructs a ReservationRepo with the given DB handle.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(sc rowScanner) (model.Reservation, error) {
	var (
		r            model.Reservation
		studentPhone sql.NullString
		gender       sql.NullString
		track        string
		memo         sql.NullString
		status       string
		canceledBy   sql.NullString
		canceledAt   sql.NullTime
	)
	err := sc.Scan(
		&r.ID,
		&r.ScheduleID,
		&r.ApplicantName,
		&r.ApplicantPhone,
		&r.StudentName,
		&studentPhone,
		&gender,
		&track,
		&r.SchoolName,
		&r.Grade,
		&memo,
		&r.MarketingAgree,
		&r.ClientIP,
		&status,
		&canceledBy,
		&canceledAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	if studentPhone.Valid {
		r.StudentPhone = &studentPhone.String
	}
	if gender.Valid {
		g := model.Gender(gender.String)
		r.Gender = &g
	}
	r.AcademicTrack = model.AcademicTrack(track)
	if memo.Valid {
		r.Memo = &memo.String
	}
	r.Status = model.ReservationStatus(status)
	if canceledBy.Valid {
		by := model.CanceledBy(canceledBy.String)
		r.CanceledBy = &by
	}
	if canceledAt.Valid {
		t := canceledAt.Time
		r.CanceledAt = &t
	}
	return r, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullGender(g *model.Gender) any {
	if g == nil {
		return nil
	}
	return string(*g)
}

// CreateTx inserts res as CONFIRMED inside tx and reloads it so the
// generated ID and timestamps are populated. The (schedule_id,
// active_phone) unique key turns a racing duplicate into ErrDuplicate.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO explanation_reservations
		(schedule_id, applicant_name, applicant_phone, student_name, student_phone, gender,
		 academic_track, school_name, grade, memo, is_marketing_agree, client_ip, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'CONFIRMED')`
	track := res.AcademicTrack
	if track == "" {
		track = model.TrackUndecided
	}
	out, err := tx.ExecContext(ctx, q,
		res.ScheduleID, res.ApplicantName, res.ApplicantPhone, res.StudentName, nullString(res.StudentPhone),
		nullGender(res.Gender), string(track), res.SchoolName, res.Grade, nullString(res.Memo),
		res.MarketingAgree, res.ClientIP)
	if err != nil {
		return mapDBError(err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.get(ctx, tx, uint64(id), false)
	if err != nil {
		return err
	}
	*res = created
	return nil
}

// ExistsConfirmedTx reports whether (scheduleID, phone) already holds a
// CONFIRMED reservation. Callers must hold the schedule row lock.
func (r *ReservationRepo) ExistsConfirmedTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, phone string) (bool, error) {
	const q = `SELECT 1 FROM explanation_reservations
		WHERE schedule_id = ? AND applicant_phone = ? AND status = 'CONFIRMED' LIMIT 1`
	var one int
	err := tx.QueryRowContext(ctx, q, scheduleID, phone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapDBError(err)
	}
	return true, nil
}

// GetByID returns a reservation without locking.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	return r.get(ctx, r.db, id, false)
}

// GetForUpdateTx re-reads a reservation under a row lock. The schedule
// row must already be locked in tx so lock order stays schedule first.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return r.get(ctx, tx, id, true)
}

func (r *ReservationRepo) get(ctx context.Context, q queryer, id uint64, forUpdate bool) (model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM explanation_reservations WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	res, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.Reservation{}, mapDBError(err)
	}
	return res, nil
}

// CancelTx flips a CONFIRMED reservation to CANCELED. It returns
// ErrNoChange when the row is not CONFIRMED anymore.
func (r *ReservationRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64, by model.CanceledBy, at time.Time) error {
	const q = `UPDATE explanation_reservations
		SET status = 'CANCELED', canceled_by = ?, canceled_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'CONFIRMED'`
	res, err := tx.ExecContext(ctx, q, string(by), at, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoChange
	}
	return nil
}

// UpdateMemo sets the admin memo of a reservation. An empty memo clears it.
func (r *ReservationRepo) UpdateMemo(ctx context.Context, id uint64, memo string) error {
	var v any
	if memo != "" {
		v = memo
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE explanation_reservations SET memo = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, v, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 both for a missing row and an identical memo.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
