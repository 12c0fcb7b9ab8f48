package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

// ReservationTx is the set of statements available inside one reservation
// transaction. LockSchedule must be the first call; every other method
// assumes the schedule row lock is held.
type ReservationTx interface {
	LockSchedule(ctx context.Context, scheduleID uint64) (model.Schedule, error)
	Event(ctx context.Context, eventID uint64) (model.Event, error)
	HasConfirmed(ctx context.Context, scheduleID uint64, phone string) (bool, error)
	InsertReservation(ctx context.Context, res *model.Reservation) error
	LockReservation(ctx context.Context, id uint64) (model.Reservation, error)
	CancelReservation(ctx context.Context, id uint64, by model.CanceledBy, at time.Time) error
	SaveCounter(ctx context.Context, scheduleID uint64, reserved int, status model.ScheduleStatus) error
	UpdateSchedule(ctx context.Context, s model.Schedule, actorID uint64) error
	DeleteSchedule(ctx context.Context, scheduleID uint64) error
}

// Transactor runs reservation work inside a single *sql.Tx.
type Transactor struct {
	db           *sql.DB
	events       *EventRepo
	schedules    *ScheduleRepo
	reservations *ReservationRepo
}

// NewTransactor wires the repositories that participate in reservation
// transactions.
func NewTransactor(db *sql.DB, events *EventRepo, schedules *ScheduleRepo, reservations *ReservationRepo) *Transactor {
	if db == nil || events == nil || schedules == nil || reservations == nil {
		panic("nil dependency passed to NewTransactor")
	}
	return &Transactor{db: db, events: events, schedules: schedules, reservations: reservations}
}

// WithReservationTx begins a READ COMMITTED transaction, hands it to fn and
// commits when fn returns nil. Any error from fn, a failed commit or a
// cancelled ctx rolls everything back.
func (t *Transactor) WithReservationTx(ctx context.Context, fn func(ReservationTx) error) error {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapDBError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlReservationTx{tx: tx, t: t}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapDBError(err)
	}
	committed = true
	return nil
}

type sqlReservationTx struct {
	tx *sql.Tx
	t  *Transactor
}

func (s *sqlReservationTx) LockSchedule(ctx context.Context, scheduleID uint64) (model.Schedule, error) {
	return s.t.schedules.GetForUpdateTx(ctx, s.tx, scheduleID)
}

func (s *sqlReservationTx) Event(ctx context.Context, eventID uint64) (model.Event, error) {
	return s.t.events.GetByIDTx(ctx, s.tx, eventID)
}

func (s *sqlReservationTx) HasConfirmed(ctx context.Context, scheduleID uint64, phone string) (bool, error) {
	return s.t.reservations.ExistsConfirmedTx(ctx, s.tx, scheduleID, phone)
}

func (s *sqlReservationTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	return s.t.reservations.CreateTx(ctx, s.tx, res)
}

func (s *sqlReservationTx) LockReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return s.t.reservations.GetForUpdateTx(ctx, s.tx, id)
}

func (s *sqlReservationTx) CancelReservation(ctx context.Context, id uint64, by model.CanceledBy, at time.Time) error {
	return s.t.reservations.CancelTx(ctx, s.tx, id, by, at)
}

func (s *sqlReservationTx) SaveCounter(ctx context.Context, scheduleID uint64, reserved int, status model.ScheduleStatus) error {
	return s.t.schedules.UpdateCounterTx(ctx, s.tx, scheduleID, reserved, status)
}

func (s *sqlReservationTx) UpdateSchedule(ctx context.Context, sc model.Schedule, actorID uint64) error {
	return s.t.schedules.UpdateDetailsTx(ctx, s.tx, sc, actorID)
}

func (s *sqlReservationTx) DeleteSchedule(ctx context.Context, scheduleID uint64) error {
	return s.t.schedules.DeleteTx(ctx, s.tx, scheduleID)
}
