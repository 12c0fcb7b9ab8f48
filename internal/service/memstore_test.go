package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
)

// memStore is an in-memory Transactor. Each schedule has its own mutex
// standing in for the InnoDB row lock, and writes are buffered per
// transaction and applied on commit only.
type memStore struct {
	mu           sync.Mutex
	rowLocks     map[uint64]*sync.Mutex
	events       map[uint64]model.Event
	schedules    map[uint64]model.Schedule
	reservations map[uint64]model.Reservation
	nextID       uint64

	// lockTimeouts makes the next n LockSchedule calls fail.
	lockTimeouts int
}

func newMemStore() *memStore {
	return &memStore{
		rowLocks:     map[uint64]*sync.Mutex{},
		events:       map[uint64]model.Event{},
		schedules:    map[uint64]model.Schedule{},
		reservations: map[uint64]model.Reservation{},
	}
}

func (m *memStore) putEvent(e model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
}

func (m *memStore) putSchedule(s model.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	if _, ok := m.rowLocks[s.ID]; !ok {
		m.rowLocks[s.ID] = &sync.Mutex{}
	}
}

func (m *memStore) schedule(id uint64) model.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

func (m *memStore) reservation(id uint64) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memStore) confirmedCount(scheduleID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.ScheduleID == scheduleID && r.Confirmed() {
			n++
		}
	}
	return n
}

func (m *memStore) rowLock(id uint64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rowLocks[id]
}

// GetByID implements ReservationLookup over committed state.
func (m *memStore) GetByID(_ context.Context, id uint64) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *memStore) WithReservationTx(ctx context.Context, fn func(repository.ReservationTx) error) error {
	tx := &memTx{
		m:            m,
		schedules:    map[uint64]model.Schedule{},
		reservations: map[uint64]model.Reservation{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range tx.schedules {
		m.schedules[id] = s
	}
	for id, r := range tx.reservations {
		m.reservations[id] = r
	}
	return nil
}

type memTx struct {
	m            *memStore
	held         []*sync.Mutex
	schedules    map[uint64]model.Schedule
	reservations map[uint64]model.Reservation
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
}

func (t *memTx) LockSchedule(ctx context.Context, id uint64) (model.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return model.Schedule{}, err
	}
	t.m.mu.Lock()
	if t.m.lockTimeouts > 0 {
		t.m.lockTimeouts--
		t.m.mu.Unlock()
		return model.Schedule{}, repository.ErrLockTimeout
	}
	lock, ok := t.m.rowLocks[id]
	t.m.mu.Unlock()
	if !ok {
		return model.Schedule{}, repository.ErrNotFound
	}
	lock.Lock()
	t.held = append(t.held, lock)
	// re-read after the lock is granted
	return t.m.schedule(id), nil
}

func (t *memTx) Event(_ context.Context, id uint64) (model.Event, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	e, ok := t.m.events[id]
	if !ok || e.DeletedAt != nil {
		return model.Event{}, repository.ErrNotFound
	}
	return e, nil
}

func (t *memTx) HasConfirmed(_ context.Context, scheduleID uint64, phone string) (bool, error) {
	for _, r := range t.reservations {
		if r.ScheduleID == scheduleID && r.ApplicantPhone == phone && r.Confirmed() {
			return true, nil
		}
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, r := range t.m.reservations {
		if r.ScheduleID == scheduleID && r.ApplicantPhone == phone && r.Confirmed() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertReservation(_ context.Context, res *model.Reservation) error {
	t.m.mu.Lock()
	t.m.nextID++
	res.ID = t.m.nextID
	t.m.mu.Unlock()
	res.Status = model.ReservationConfirmed
	if res.AcademicTrack == "" {
		res.AcademicTrack = model.TrackUndecided
	}
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	t.reservations[res.ID] = *res
	return nil
}

func (t *memTx) LockReservation(_ context.Context, id uint64) (model.Reservation, error) {
	if r, ok := t.reservations[id]; ok {
		return r, nil
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	r, ok := t.m.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (t *memTx) CancelReservation(ctx context.Context, id uint64, by model.CanceledBy, at time.Time) error {
	r, err := t.LockReservation(ctx, id)
	if err != nil {
		return err
	}
	if !r.Confirmed() {
		return repository.ErrNoChange
	}
	r.Status = model.ReservationCanceled
	r.CanceledBy = &by
	r.CanceledAt = &at
	t.reservations[id] = r
	return nil
}

func (t *memTx) SaveCounter(_ context.Context, id uint64, reserved int, status model.ScheduleStatus) error {
	s := t.m.schedule(id)
	s.ReservedCount = reserved
	s.Status = status
	t.schedules[id] = s
	return nil
}

func (t *memTx) UpdateSchedule(_ context.Context, s model.Schedule, _ uint64) error {
	cur := t.m.schedule(s.ID)
	s.ReservedCount = cur.ReservedCount
	t.schedules[s.ID] = s
	return nil
}

func (t *memTx) DeleteSchedule(_ context.Context, id uint64) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, r := range t.m.reservations {
		if r.ScheduleID == id {
			return repository.ErrConflict
		}
	}
	delete(t.m.schedules, id)
	return nil
}
