package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

// ReservationFilter narrows an admin reservation search. Zero fields do
// not filter.
type ReservationFilter struct {
	EventID        uint64
	ScheduleID     uint64
	ApplicantName  string
	ApplicantPhone string
	Keyword        string
	Status         model.ReservationStatus
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}

// Predicate renders the filter against the r/s/e aliases used by the
// search queries below.
func (f ReservationFilter) Predicate() Predicate {
	var from, to Predicate
	if f.CreatedFrom != nil {
		from = Gte("r.created_at", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		to = Lte("r.created_at", *f.CreatedTo)
	}
	return And(
		When(f.EventID != 0, Eq("s.explanation_id", f.EventID)),
		When(f.ScheduleID != 0, Eq("r.schedule_id", f.ScheduleID)),
		When(f.ApplicantName != "", Eq("r.applicant_name", f.ApplicantName)),
		When(f.ApplicantPhone != "", Eq("r.applicant_phone", f.ApplicantPhone)),
		When(f.Status != "", Eq("r.status", string(f.Status))),
		Or(
			Like("r.applicant_name", f.Keyword),
			Like("r.applicant_phone", f.Keyword),
			Like("r.student_name", f.Keyword),
			Like("r.school_name", f.Keyword),
		),
		from,
		to,
	)
}

// ReservationRow is a reservation joined with its schedule and event.
type ReservationRow struct {
	model.Reservation
	EventID    uint64    `db:"explanation_id" json:"explanation_id"`
	EventTitle string    `db:"event_title" json:"event_title"`
	RoundNo    int       `db:"round_no" json:"round_no"`
	StartAt    time.Time `db:"start_at" json:"start_at"`
	Location   string    `db:"location" json:"location"`
}

// ScheduleStat is the per-schedule breakdown of a statistics query.
type ScheduleStat struct {
	ScheduleID    uint64 `db:"schedule_id" json:"schedule_id"`
	EventID       uint64 `db:"explanation_id" json:"explanation_id"`
	RoundNo       int    `db:"round_no" json:"round_no"`
	Capacity      *int   `db:"capacity" json:"capacity"`
	ReservedCount int    `db:"reserved_count" json:"reserved_count"`
	Confirmed     int64  `db:"confirmed" json:"confirmed"`
	Canceled      int64  `db:"canceled" json:"canceled"`
}

// ReservationStats aggregates reservation counts.
type ReservationStats struct {
	Total     int64          `json:"total"`
	Confirmed int64          `json:"confirmed"`
	Canceled  int64          `json:"canceled"`
	Schedules []ScheduleStat `json:"schedules"`
}

const reservationRowSelect = `SELECT
		r.id, r.schedule_id, r.applicant_name, r.applicant_phone, r.student_name, r.student_phone,
		r.gender, r.academic_track, r.school_name, r.grade, r.memo, r.is_marketing_agree, r.client_ip,
		r.status, r.canceled_by, r.canceled_at, r.created_at, r.updated_at,
		s.explanation_id, e.title AS event_title, s.round_no, s.start_at, s.location
	FROM explanation_reservations r
	JOIN explanation_schedules s ON s.id = r.schedule_id
	JOIN explanation_events e    ON e.id = s.explanation_id`

// ReservationSearch runs read-only reservation queries. It never locks.
type ReservationSearch struct{ x *sqlx.DB }

// NewReservationSearch wraps db for sqlx struct scanning.
func NewReservationSearch(db *sql.DB) *ReservationSearch {
	return &ReservationSearch{x: sqlx.NewDb(db, "mysql")}
}

// Search returns one page of reservations matching f, newest first, with
// the total match count.
func (s *ReservationSearch) Search(ctx context.Context, f ReservationFilter, page Page) ([]ReservationRow, int64, error) {
	cond, args := Where(f.Predicate())
	var total int64
	countSQL := `SELECT COUNT(*)
		FROM explanation_reservations r
		JOIN explanation_schedules s ON s.id = r.schedule_id
		WHERE ` + cond
	if err := sqlx.GetContext(ctx, s.x, &total, countSQL, args...); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	out := []ReservationRow{}
	dataSQL := reservationRowSelect + ` WHERE ` + cond + ` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, s.x, &out, dataSQL, append(append([]any{}, args...), page.Size, page.Offset())...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get returns a single joined reservation row.
func (s *ReservationSearch) Get(ctx context.Context, id uint64) (ReservationRow, error) {
	var row ReservationRow
	if err := sqlx.GetContext(ctx, s.x, &row, reservationRowSelect+` WHERE r.id = ?`, id); err != nil {
		return ReservationRow{}, mapDBError(err)
	}
	return row, nil
}

// ListByApplicant returns every reservation submitted with name and phone,
// newest first. It backs the public "my reservations" lookup.
func (s *ReservationSearch) ListByApplicant(ctx context.Context, name, phone string) ([]ReservationRow, error) {
	cond, args := Where(
		Eq("r.applicant_name", name),
		Eq("r.applicant_phone", phone),
		IsNull("e.deleted_at"),
	)
	out := []ReservationRow{}
	err := sqlx.SelectContext(ctx, s.x, &out, reservationRowSelect+` WHERE `+cond+` ORDER BY r.created_at DESC, r.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics counts reservations by status overall and per schedule. A
// zero eventID covers every live event.
func (s *ReservationSearch) Statistics(ctx context.Context, eventID uint64) (ReservationStats, error) {
	cond, args := Where(
		IsNull("e.deleted_at"),
		When(eventID != 0, Eq("s.explanation_id", eventID)),
	)
	q := `SELECT s.id AS schedule_id, s.explanation_id, s.round_no, s.capacity, s.reserved_count,
			COALESCE(SUM(r.status = 'CONFIRMED'), 0) AS confirmed,
			COALESCE(SUM(r.status = 'CANCELED'), 0)  AS canceled
		FROM explanation_schedules s
		JOIN explanation_events e ON e.id = s.explanation_id
		LEFT JOIN explanation_reservations r ON r.schedule_id = s.id
		WHERE ` + cond + `
		GROUP BY s.id, s.explanation_id, s.round_no, s.capacity, s.reserved_count
		ORDER BY s.explanation_id ASC, s.round_no ASC`
	rows := []ScheduleStat{}
	if err := sqlx.SelectContext(ctx, s.x, &rows, q, args...); err != nil {
		return ReservationStats{}, err
	}
	stats := ReservationStats{Schedules: rows}
	for _, r := range rows {
		stats.Confirmed += r.Confirmed
		stats.Canceled += r.Canceled
	}
	stats.Total = stats.Confirmed + stats.Canceled
	return stats, nil
}
