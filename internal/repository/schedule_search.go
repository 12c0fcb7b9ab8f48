package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

// ScheduleFilter narrows a schedule query. Zero fields do not filter.
type ScheduleFilter struct {
	EventID uint64
	// OpenAt keeps schedules whose application window contains the instant.
	OpenAt *time.Time
	// HasSeats keeps unlimited schedules and those with free seats.
	HasSeats bool
	// MinOccupancy keeps limited schedules at or above the percentage.
	MinOccupancy float64
	// PublishedOnly hides schedules of unpublished events.
	PublishedOnly bool
}

// Predicate renders the filter against the s/e aliases.
func (f ScheduleFilter) Predicate() Predicate {
	var open Predicate
	if f.OpenAt != nil {
		open = And(Lte("s.apply_start_at", *f.OpenAt), Gte("s.apply_end_at", *f.OpenAt))
	}
	return And(
		IsNull("e.deleted_at"),
		When(f.PublishedOnly, Eq("e.is_published", true)),
		When(f.EventID != 0, Eq("s.explanation_id", f.EventID)),
		open,
		When(f.HasSeats, Or(
			IsNull("s.capacity"),
			Eq("s.capacity", 0),
			Raw("s.reserved_count < s.capacity"),
		)),
		When(f.MinOccupancy > 0, Raw("s.capacity > 0 AND s.reserved_count * 100 >= ? * s.capacity", f.MinOccupancy)),
	)
}

// ScheduleRow is a schedule joined with its event title and division.
type ScheduleRow struct {
	model.Schedule
	EventTitle string         `db:"event_title" json:"event_title"`
	Division   model.Division `db:"division" json:"division"`
}

// ScheduleSearch runs read-only schedule queries. It never locks.
type ScheduleSearch struct{ x *sqlx.DB }

// NewScheduleSearch wraps db for sqlx struct scanning.
func NewScheduleSearch(db *sql.DB) *ScheduleSearch {
	return &ScheduleSearch{x: sqlx.NewDb(db, "mysql")}
}

// Find returns schedules matching f in the given order. limit <= 0 means
// no limit.
func (s *ScheduleSearch) Find(ctx context.Context, f ScheduleFilter, order ScheduleOrder, limit int) ([]ScheduleRow, error) {
	cond, args := Where(f.Predicate())
	q := `SELECT s.id, s.explanation_id, s.round_no, s.start_at, s.end_at, s.location,
			s.apply_start_at, s.apply_end_at, s.capacity, s.reserved_count, s.status, s.created_at, s.updated_at,
			e.title AS event_title, e.division
		FROM explanation_schedules s
		JOIN explanation_events e ON e.id = s.explanation_id
		WHERE ` + cond + ` ORDER BY ` + order.sql()
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	out := []ScheduleRow{}
	if err := sqlx.SelectContext(ctx, s.x, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ScheduleOrder selects one of the supported sort orders.
type ScheduleOrder int

const (
	OrderByStart ScheduleOrder = iota
	OrderByOccupancy
)

func (o ScheduleOrder) sql() string {
	if o == OrderByOccupancy {
		return `s.reserved_count / s.capacity DESC, s.start_at ASC`
	}
	return `s.start_at ASC, s.round_no ASC`
}

// Reservable lists schedules whose window is open at now and that still
// have seats, for published live events. eventID 0 covers all events.
func (s *ScheduleSearch) Reservable(ctx context.Context, eventID uint64, now time.Time) ([]ScheduleRow, error) {
	return s.Find(ctx, ScheduleFilter{
		EventID:       eventID,
		OpenAt:        &now,
		HasSeats:      true,
		PublishedOnly: true,
	}, OrderByStart, 0)
}

// HighOccupancy lists limited schedules whose occupancy is at least
// thresholdPercent, fullest first.
func (s *ScheduleSearch) HighOccupancy(ctx context.Context, thresholdPercent float64, limit int) ([]ScheduleRow, error) {
	return s.Find(ctx, ScheduleFilter{MinOccupancy: thresholdPercent}, OrderByOccupancy, limit)
}

// StaleStatus returns ids of schedules whose cached status differs from
// the one derived at now. Only live events are considered.
func (s *ScheduleSearch) StaleStatus(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 500
	}
	q := `SELECT s.id
		FROM explanation_schedules s
		JOIN explanation_events e ON e.id = s.explanation_id
		WHERE e.deleted_at IS NULL
		  AND s.status <> CASE
			WHEN s.apply_start_at <= ? AND s.apply_end_at >= ?
			 AND (s.capacity IS NULL OR s.capacity = 0 OR s.reserved_count < s.capacity)
			THEN 'RESERVABLE' ELSE 'CLOSED' END
		ORDER BY s.id LIMIT ?`
	ids := []uint64{}
	if err := sqlx.SelectContext(ctx, s.x, &ids, q, now, now, limit); err != nil {
		return nil, err
	}
	return ids, nil
}
