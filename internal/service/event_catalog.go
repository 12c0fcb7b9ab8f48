package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
)

// EventStore persists explanation events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event, actorID uint64) error
	GetByID(ctx context.Context, id uint64) (model.Event, error)
	Update(ctx context.Context, e model.Event, actorID uint64) error
	SetPublished(ctx context.Context, id uint64, published bool, actorID uint64) error
	SoftDelete(ctx context.Context, id uint64, actorID uint64) error
	IncrementViews(ctx context.Context, id uint64) error
	List(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
}

// ScheduleStore persists schedules outside the reservation transaction.
type ScheduleStore interface {
	Create(ctx context.Context, s *model.Schedule, actorID uint64) error
	GetByID(ctx context.Context, id uint64) (model.Schedule, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Schedule, error)
	ListByEvents(ctx context.Context, eventIDs []uint64) (map[uint64][]model.Schedule, error)
	RoundExists(ctx context.Context, eventID uint64, roundNo int, excludeID uint64) (bool, error)
}

// MemoStore updates the admin memo of a reservation.
type MemoStore interface {
	UpdateMemo(ctx context.Context, id uint64, memo string) error
}

// EventInput carries the editable fields of an event.
type EventInput struct {
	Division  model.Division
	Title     string
	Content   string
	Pinned    bool
	Published bool
}

func (in EventInput) validate() error {
	if !in.Division.Valid() {
		return fmt.Errorf("%w: unknown division %q", ErrInvalidInput, in.Division)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}

// ScheduleInput carries the editable fields of a schedule. A nil or zero
// Capacity means unlimited.
type ScheduleInput struct {
	RoundNo      int
	StartAt      time.Time
	EndAt        time.Time
	Location     string
	ApplyStartAt time.Time
	ApplyEndAt   time.Time
	Capacity     *int
}

func (in ScheduleInput) validate() error {
	switch {
	case in.RoundNo < 1:
		return fmt.Errorf("%w: round number must be positive", ErrInvalidInput)
	case in.ApplyStartAt.IsZero() || in.ApplyEndAt.IsZero():
		return fmt.Errorf("%w: application window is required", ErrInvalidInput)
	case in.ApplyEndAt.Before(in.ApplyStartAt):
		return fmt.Errorf("%w: application window ends before it starts", ErrInvalidInput)
	case !in.EndAt.IsZero() && in.EndAt.Before(in.StartAt):
		return fmt.Errorf("%w: schedule ends before it starts", ErrInvalidInput)
	case in.Capacity != nil && *in.Capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidInput)
	}
	return nil
}

func (in ScheduleInput) apply(s *model.Schedule) {
	s.RoundNo = in.RoundNo
	s.StartAt = in.StartAt
	s.EndAt = in.EndAt
	s.Location = strings.TrimSpace(in.Location)
	s.ApplyStartAt = in.ApplyStartAt
	s.ApplyEndAt = in.ApplyEndAt
	s.Capacity = in.Capacity
}

// EventView is an event with its schedules.
type EventView struct {
	model.Event
	Schedules []ScheduleView `json:"schedules"`
}

// EventPage is one page of an event listing.
type EventPage struct {
	Items []EventView `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// EventCatalog manages events and schedules for the back office and
// serves the public catalog. It never changes reserved_count; schedule
// edits lock the row so they serialize with reservations.
type EventCatalog struct {
	events    EventStore
	schedules ScheduleStore
	memos     MemoStore
	tx        Transactor
	now       func() time.Time
	log       *logrus.Logger
}

// NewEventCatalog builds an EventCatalog.
func NewEventCatalog(events EventStore, schedules ScheduleStore, memos MemoStore, tx Transactor, log *logrus.Logger) *EventCatalog {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventCatalog{events: events, schedules: schedules, memos: memos, tx: tx, now: time.Now, log: log}
}

// CreateEvent stores a new event.
func (c *EventCatalog) CreateEvent(ctx context.Context, in EventInput, actorID uint64) (model.Event, error) {
	if err := in.validate(); err != nil {
		return model.Event{}, err
	}
	e := model.Event{
		Division:  in.Division,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Pinned:    in.Pinned,
		Published: in.Published,
	}
	if err := c.events.Create(ctx, &e, actorID); err != nil {
		return model.Event{}, err
	}
	c.log.WithFields(logrus.Fields{"event_id": e.ID, "admin_id": actorID}).Info("event created")
	return e, nil
}

// UpdateEvent rewrites the editable fields. Publication is changed only
// through SetPublished.
func (c *EventCatalog) UpdateEvent(ctx context.Context, id uint64, in EventInput, actorID uint64) (model.Event, error) {
	if err := in.validate(); err != nil {
		return model.Event{}, err
	}
	e, err := c.events.GetByID(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	e.Division = in.Division
	e.Title = strings.TrimSpace(in.Title)
	e.Content = in.Content
	e.Pinned = in.Pinned
	if err := c.events.Update(ctx, e, actorID); err != nil {
		return model.Event{}, err
	}
	return c.events.GetByID(ctx, id)
}

// SetPublished shows or hides an event and all its schedules.
func (c *EventCatalog) SetPublished(ctx context.Context, id uint64, published bool, actorID uint64) error {
	if err := c.events.SetPublished(ctx, id, published, actorID); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"event_id": id, "admin_id": actorID, "published": published}).Info("event publication changed")
	return nil
}

// DeleteEvent logically deletes an event. Its schedules become unreachable
// and reservations are kept.
func (c *EventCatalog) DeleteEvent(ctx context.Context, id uint64, actorID uint64) error {
	if err := c.events.SoftDelete(ctx, id, actorID); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"event_id": id, "admin_id": actorID}).Info("event deleted")
	return nil
}

// GetEvent returns an event with its schedules. Public callers only see
// published events and bump the view counter.
func (c *EventCatalog) GetEvent(ctx context.Context, id uint64, public bool) (EventView, error) {
	e, err := c.events.GetByID(ctx, id)
	if err != nil {
		return EventView{}, err
	}
	if public && !e.Reservable() {
		return EventView{}, ErrNotFound
	}
	list, err := c.schedules.ListByEvent(ctx, id)
	if err != nil {
		return EventView{}, err
	}
	if public {
		if err := c.events.IncrementViews(ctx, id); err != nil {
			c.log.WithError(err).WithField("event_id", id).Warn("view counter update failed")
		}
	}
	return c.view(e, list, c.now()), nil
}

// ListEvents returns one page of events with their schedules.
func (c *EventCatalog) ListEvents(ctx context.Context, q repository.EventSearchQuery) (EventPage, error) {
	q.Page = q.Page.Normalize()
	events, total, err := c.events.List(ctx, q)
	if err != nil {
		return EventPage{}, err
	}
	ids := make([]uint64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	byEvent, err := c.schedules.ListByEvents(ctx, ids)
	if err != nil {
		return EventPage{}, err
	}
	now := c.now()
	items := make([]EventView, len(events))
	for i, e := range events {
		items[i] = c.view(e, byEvent[e.ID], now)
	}
	return EventPage{Items: items, Total: total, Page: q.Page.Number, Size: q.Page.Size}, nil
}

func (c *EventCatalog) view(e model.Event, list []model.Schedule, now time.Time) EventView {
	v := EventView{Event: e, Schedules: make([]ScheduleView, len(list))}
	for i, s := range list {
		v.Schedules[i] = newScheduleView(s, e.Reservable(), now)
	}
	return v
}

// CreateSchedule adds a round to an event. Round numbers are unique per
// event.
func (c *EventCatalog) CreateSchedule(ctx context.Context, eventID uint64, in ScheduleInput, actorID uint64) (model.Schedule, error) {
	if err := in.validate(); err != nil {
		return model.Schedule{}, err
	}
	if _, err := c.events.GetByID(ctx, eventID); err != nil {
		return model.Schedule{}, err
	}
	if err := c.checkRound(ctx, eventID, in.RoundNo, 0); err != nil {
		return model.Schedule{}, err
	}
	s := model.Schedule{EventID: eventID}
	in.apply(&s)
	s.Status = model.ComputeStatus(s, c.now())
	if err := c.schedules.Create(ctx, &s, actorID); err != nil {
		return model.Schedule{}, roundTaken(err, in.RoundNo)
	}
	c.log.WithFields(logrus.Fields{"event_id": eventID, "schedule_id": s.ID, "admin_id": actorID}).Info("schedule created")
	return s, nil
}

// UpdateSchedule edits a schedule under its row lock. Capacity may not
// drop below the seats already reserved. The cached status is refreshed.
func (c *EventCatalog) UpdateSchedule(ctx context.Context, id uint64, in ScheduleInput, actorID uint64) (model.Schedule, error) {
	if err := in.validate(); err != nil {
		return model.Schedule{}, err
	}
	cur, err := c.schedules.GetByID(ctx, id)
	if err != nil {
		return model.Schedule{}, err
	}
	if err := c.checkRound(ctx, cur.EventID, in.RoundNo, id); err != nil {
		return model.Schedule{}, err
	}

	var updated model.Schedule
	err = c.tx.WithReservationTx(ctx, func(tx repository.ReservationTx) error {
		s, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return err
		}
		in.apply(&s)
		if !s.Unlimited() && *s.Capacity < s.ReservedCount {
			return fmt.Errorf("%w: capacity %d is below the %d seats already reserved",
				ErrConflict, *s.Capacity, s.ReservedCount)
		}
		s.Status = model.ComputeStatus(s, c.now())
		if err := tx.UpdateSchedule(ctx, s, actorID); err != nil {
			return roundTaken(err, in.RoundNo)
		}
		updated = s
		return nil
	})
	if err != nil {
		return model.Schedule{}, err
	}
	c.log.WithFields(logrus.Fields{"schedule_id": id, "admin_id": actorID, "status": updated.Status}).Info("schedule updated")
	return updated, nil
}

// DeleteSchedule removes a schedule that has never been reserved.
func (c *EventCatalog) DeleteSchedule(ctx context.Context, id uint64, actorID uint64) error {
	err := c.tx.WithReservationTx(ctx, func(tx repository.ReservationTx) error {
		if _, err := tx.LockSchedule(ctx, id); err != nil {
			return err
		}
		return tx.DeleteSchedule(ctx, id)
	})
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"schedule_id": id, "admin_id": actorID}).Info("schedule deleted")
	return nil
}

// UpdateReservationMemo sets or clears the admin memo on a reservation.
func (c *EventCatalog) UpdateReservationMemo(ctx context.Context, id uint64, memo string) error {
	memo = strings.TrimSpace(memo)
	if len([]rune(memo)) > 255 {
		return fmt.Errorf("%w: memo is too long", ErrInvalidInput)
	}
	return c.memos.UpdateMemo(ctx, id, memo)
}

func (c *EventCatalog) checkRound(ctx context.Context, eventID uint64, roundNo int, excludeID uint64) error {
	taken, err := c.schedules.RoundExists(ctx, eventID, roundNo, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: round %d already exists", ErrConflict, roundNo)
	}
	return nil
}

// roundTaken maps a unique-key rejection from a concurrent writer of the
// same round onto ErrConflict.
func roundTaken(err error, roundNo int) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: round %d already exists", ErrConflict, roundNo)
	}
	return err
}
