package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/utils"
)

// Transactor runs fn inside one database transaction holding whatever row
// locks fn acquires. It commits only when fn returns nil.
type Transactor interface {
	WithReservationTx(ctx context.Context, fn func(repository.ReservationTx) error) error
}

// ReservationLookup is the unlocked read used to find a reservation's
// schedule before the lock is taken.
type ReservationLookup interface {
	GetByID(ctx context.Context, id uint64) (model.Reservation, error)
}

// Notifier delivers the confirmation message for a committed reservation.
// Calls are best effort.
type Notifier interface {
	SendExplanationConfirmation(ctx context.Context, phone, applicantName, scheduleDescription string) error
}

// ReserveRequest is one applicant's submission for a schedule.
type ReserveRequest struct {
	ScheduleID     uint64
	ApplicantName  string
	ApplicantPhone string
	StudentName    string
	StudentPhone   *string
	Gender         *model.Gender
	AcademicTrack  model.AcademicTrack
	SchoolName     string
	Grade          string
	Memo           *string
	MarketingAgree bool
	ClientIP       string
}

// CancelRequest cancels one reservation. Applicants (By == USER) must
// present the name and phone the reservation was made with; admins
// (By == ADMIN) identify themselves with ActorID.
type CancelRequest struct {
	ReservationID  uint64
	By             model.CanceledBy
	ActorID        uint64
	ApplicantName  string
	ApplicantPhone string
}

// Coordinator serializes reservations and cancellations per schedule using
// the schedule row lock. It is the only writer of reserved_count.
type Coordinator struct {
	tx            Transactor
	lookup        ReservationLookup
	notifier      Notifier
	log           *logrus.Logger
	now           func() time.Time
	notifyTimeout time.Duration

	wg sync.WaitGroup
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNotifier sets the post-commit confirmation notifier.
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithNotifyTimeout bounds each notification attempt.
func WithNotifyTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCoordinator builds a Coordinator. tx and lookup are required.
func NewCoordinator(tx Transactor, lookup ReservationLookup, opts ...CoordinatorOption) *Coordinator {
	if tx == nil || lookup == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	c := &Coordinator{
		tx:            tx,
		lookup:        lookup,
		log:           logrus.StandardLogger(),
		now:           time.Now,
		notifyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reserve allocates one seat of req.ScheduleID to the applicant. All
// checks run against the schedule re-read under its row lock, and the
// insert plus counter update commit together. The confirmation message is
// sent after commit and never affects the result.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	req.ApplicantPhone = utils.NormalizePhone(req.ApplicantPhone)
	req.ApplicantName = strings.TrimSpace(req.ApplicantName)
	if req.ScheduleID == 0 || req.ApplicantName == "" || !utils.ValidPhone(req.ApplicantPhone) {
		return model.Reservation{}, ErrInvalidInput
	}
	if req.StudentPhone != nil {
		p := utils.NormalizePhone(*req.StudentPhone)
		switch {
		case p == "":
			req.StudentPhone = nil
		case !utils.ValidPhone(p):
			return model.Reservation{}, ErrInvalidInput
		default:
			req.StudentPhone = &p
		}
	}
	fields := logrus.Fields{
		"op":          "reserve",
		"schedule_id": req.ScheduleID,
		"phone_hash":  utils.HashPhone(req.ApplicantPhone),
	}

	var (
		created  model.Reservation
		schedule model.Schedule
		event    model.Event
	)
	err := c.tx.WithReservationTx(ctx, func(tx repository.ReservationTx) error {
		s, err := tx.LockSchedule(ctx, req.ScheduleID)
		if err != nil {
			return err
		}
		ev, err := tx.Event(ctx, s.EventID)
		if err != nil {
			return err
		}
		if !ev.Reservable() {
			return ErrNotFound
		}

		now := c.now()
		if !s.InWindow(now) {
			return ErrWindowNotOpen
		}
		if err := c.checkCounter(s, fields); err != nil {
			return err
		}
		if s.Full() {
			return ErrCapacityFull
		}

		dup, err := tx.HasConfirmed(ctx, s.ID, req.ApplicantPhone)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateReservation
		}

		res := model.Reservation{
			ScheduleID:     s.ID,
			ApplicantName:  req.ApplicantName,
			ApplicantPhone: req.ApplicantPhone,
			StudentName:    strings.TrimSpace(req.StudentName),
			StudentPhone:   req.StudentPhone,
			Gender:         req.Gender,
			AcademicTrack:  req.AcademicTrack,
			SchoolName:     strings.TrimSpace(req.SchoolName),
			Grade:          strings.TrimSpace(req.Grade),
			Memo:           req.Memo,
			MarketingAgree: req.MarketingAgree,
			ClientIP:       req.ClientIP,
		}
		if err := tx.InsertReservation(ctx, &res); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateReservation
			}
			return err
		}

		s.ReservedCount++
		s.Status = model.ComputeStatus(s, now)
		if err := tx.SaveCounter(ctx, s.ID, s.ReservedCount, s.Status); err != nil {
			return err
		}
		created, schedule, event = res, s, ev
		return nil
	})
	if err != nil {
		c.logFailure(fields, err)
		return model.Reservation{}, err
	}

	c.log.WithFields(fields).WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"reserved_count": schedule.ReservedCount,
		"status":         schedule.Status,
	}).Info("reservation confirmed")

	c.notifyConfirmed(created, schedule, event)
	return created, nil
}

// Cancel releases the seat held by a CONFIRMED reservation. Canceling an
// already CANCELED reservation succeeds without touching the counter.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (model.Reservation, error) {
	fields := logrus.Fields{
		"op":             "cancel",
		"reservation_id": req.ReservationID,
		"canceled_by":    req.By,
	}
	switch req.By {
	case model.CanceledByUser:
		req.ApplicantPhone = utils.NormalizePhone(req.ApplicantPhone)
		req.ApplicantName = strings.TrimSpace(req.ApplicantName)
		if req.ApplicantPhone == "" || req.ApplicantName == "" {
			return model.Reservation{}, ErrInvalidInput
		}
	case model.CanceledByAdmin:
		if req.ActorID == 0 {
			return model.Reservation{}, ErrForbidden
		}
		fields["admin_id"] = req.ActorID
	default:
		return model.Reservation{}, ErrInvalidInput
	}

	// Unlocked read only to learn which schedule row to lock.
	found, err := c.lookup.GetByID(ctx, req.ReservationID)
	if err != nil {
		c.logFailure(fields, err)
		return model.Reservation{}, err
	}
	fields["schedule_id"] = found.ScheduleID

	var (
		result   model.Reservation
		schedule model.Schedule
		noop     bool
	)
	err = c.tx.WithReservationTx(ctx, func(tx repository.ReservationTx) error {
		s, err := tx.LockSchedule(ctx, found.ScheduleID)
		if err != nil {
			return err
		}
		cur, err := tx.LockReservation(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		if req.By == model.CanceledByUser && !ownedBy(cur, req.ApplicantName, req.ApplicantPhone) {
			return ErrForbidden
		}
		if !cur.Confirmed() {
			result, noop = cur, true
			return nil
		}
		if err := c.checkCounter(s, fields); err != nil {
			return err
		}
		if s.ReservedCount <= 0 {
			c.log.WithFields(fields).WithField("reserved_count", s.ReservedCount).
				Error("consistency violation: reserved count would go negative")
			return ErrConsistencyViolation
		}

		now := c.now()
		if err := tx.CancelReservation(ctx, cur.ID, req.By, now); err != nil {
			return err
		}
		s.ReservedCount--
		s.Status = model.ComputeStatus(s, now)
		if err := tx.SaveCounter(ctx, s.ID, s.ReservedCount, s.Status); err != nil {
			return err
		}

		by := req.By
		cur.Status = model.ReservationCanceled
		cur.CanceledBy = &by
		cur.CanceledAt = &now
		result, schedule = cur, s
		return nil
	})
	if err != nil {
		c.logFailure(fields, err)
		return model.Reservation{}, err
	}
	if noop {
		c.log.WithFields(fields).Info("reservation already canceled")
		return result, nil
	}
	c.log.WithFields(fields).WithFields(logrus.Fields{
		"reserved_count": schedule.ReservedCount,
		"status":         schedule.Status,
	}).Info("reservation canceled")
	return result, nil
}

// RefreshStatus rewrites the cached status of one schedule under its row
// lock. It reports whether the stored value changed. The counter is left
// untouched.
func (c *Coordinator) RefreshStatus(ctx context.Context, scheduleID uint64) (bool, error) {
	fields := logrus.Fields{"op": "refresh_status", "schedule_id": scheduleID}
	changed := false
	err := c.tx.WithReservationTx(ctx, func(tx repository.ReservationTx) error {
		s, err := tx.LockSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if err := c.checkCounter(s, fields); err != nil {
			return err
		}
		status := model.ComputeStatus(s, c.now())
		if status == s.Status {
			return nil
		}
		if err := tx.SaveCounter(ctx, s.ID, s.ReservedCount, status); err != nil {
			return err
		}
		fields["status"] = status
		changed = true
		return nil
	})
	if err != nil {
		c.logFailure(fields, err)
		return false, err
	}
	if changed {
		c.log.WithFields(fields).Debug("schedule status refreshed")
	}
	return changed, nil
}

// Wait blocks until every in-flight notification has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// checkCounter rejects a locked schedule whose counter already breaks its
// invariants. The transaction is aborted, never corrected.
func (c *Coordinator) checkCounter(s model.Schedule, fields logrus.Fields) error {
	bad := s.ReservedCount < 0 || (!s.Unlimited() && s.ReservedCount > *s.Capacity)
	if !bad {
		return nil
	}
	c.log.WithFields(fields).WithFields(logrus.Fields{
		"reserved_count": s.ReservedCount,
		"capacity":       s.CapacityValue(),
	}).Error("consistency violation: reserved count outside capacity bounds")
	return ErrConsistencyViolation
}

func (c *Coordinator) logFailure(fields logrus.Fields, err error) {
	entry := c.log.WithFields(fields).WithField("code", Code(err))
	switch {
	case userFacing(err):
		entry.Info("reservation request rejected")
	case errors.Is(err, ErrConsistencyViolation):
		// already logged at error level where detected
	default:
		entry.WithError(err).Error("reservation request failed")
	}
}

func (c *Coordinator) notifyConfirmed(res model.Reservation, s model.Schedule, ev model.Event) {
	if c.notifier == nil {
		return
	}
	desc := ScheduleDescription(ev, s)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		defer cancel()
		if err := c.notifier.SendExplanationConfirmation(ctx, res.ApplicantPhone, res.ApplicantName, desc); err != nil {
			c.log.WithFields(logrus.Fields{
				"reservation_id": res.ID,
				"schedule_id":    s.ID,
				"phone_hash":     utils.HashPhone(res.ApplicantPhone),
			}).WithError(err).Warn("confirmation notification failed")
		}
	}()
}

// ScheduleDescription renders the human-readable round summary used in
// confirmation messages.
func ScheduleDescription(ev model.Event, s model.Schedule) string {
	desc := fmt.Sprintf("%s (round %d) %s", ev.Title, s.RoundNo, s.StartAt.Format("2006-01-02 15:04"))
	if s.Location != "" {
		desc += " @ " + s.Location
	}
	return desc
}

func ownedBy(r model.Reservation, name, phone string) bool {
	return r.ApplicantPhone == phone && r.ApplicantName == name
}
