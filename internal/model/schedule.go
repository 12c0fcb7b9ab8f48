package model

import "time"

// ScheduleStatus is the reservable/closed state of a schedule.
type ScheduleStatus string

const (
    ScheduleReservable ScheduleStatus = "RESERVABLE"
    ScheduleClosed     ScheduleStatus = "CLOSED"
)

// Schedule is one round of an explanation event.  It carries its own
// application window and capacity.  ReservedCount is the live number of
// CONFIRMED reservations and is only written by the reservation
// coordinator while it holds the row lock.  Status is a cached copy of
// ComputeStatus and must not be trusted on its own.
//
// Fields:
//  ID            – primary key identifier.
//  EventID       – owning event.
//  RoundNo       – 1-based round number, unique within the event.
//  StartAt/EndAt – when the session itself takes place.
//  Location      – venue text.
//  ApplyStartAt  – first instant at which reservations are accepted.
//  ApplyEndAt    – last instant at which reservations are accepted.
//  Capacity      – seat limit; nil or zero means unlimited.
//  ReservedCount – CONFIRMED reservations currently held.
//  Status        – cached RESERVABLE / CLOSED.
type Schedule struct {
    ID            uint64         `db:"id" json:"id"`                         // explanation_schedules.id
    EventID       uint64         `db:"explanation_id" json:"explanation_id"` // explanation_schedules.explanation_id
    RoundNo       int            `db:"round_no" json:"round_no"`             // explanation_schedules.round_no
    StartAt       time.Time      `db:"start_at" json:"start_at"`             // explanation_schedules.start_at
    EndAt         time.Time      `db:"end_at" json:"end_at"`                 // explanation_schedules.end_at
    Location      string         `db:"location" json:"location"`             // explanation_schedules.location
    ApplyStartAt  time.Time      `db:"apply_start_at" json:"apply_start_at"` // explanation_schedules.apply_start_at
    ApplyEndAt    time.Time      `db:"apply_end_at" json:"apply_end_at"`     // explanation_schedules.apply_end_at
    Capacity      *int           `db:"capacity" json:"capacity"`             // explanation_schedules.capacity (nullable)
    ReservedCount int            `db:"reserved_count" json:"reserved_count"` // explanation_schedules.reserved_count
    Status        ScheduleStatus `db:"status" json:"status"`                 // explanation_schedules.status
    CreatedAt     time.Time      `db:"created_at" json:"created_at"`         // explanation_schedules.created_at
    UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`         // explanation_schedules.updated_at
}

// Unlimited reports whether the schedule has no seat limit.
func (s Schedule) Unlimited() bool {
    return s.Capacity == nil || *s.Capacity <= 0
}

// CapacityValue returns the positive capacity, or 0 when unlimited.
func (s Schedule) CapacityValue() int {
    if s.Unlimited() {
        return 0
    }
    return *s.Capacity
}

// Remaining returns the number of free seats, or -1 for unlimited schedules.
func (s Schedule) Remaining() int {
    if s.Unlimited() {
        return -1
    }
    if r := *s.Capacity - s.ReservedCount; r > 0 {
        return r
    }
    return 0
}

// OccupancyPercent returns ReservedCount as a percentage of capacity.
// Unlimited schedules always report 0.
func (s Schedule) OccupancyPercent() float64 {
    if s.Unlimited() {
        return 0
    }
    return float64(s.ReservedCount) * 100 / float64(*s.Capacity)
}

// Full reports whether a limited schedule has no free seats left.
func (s Schedule) Full() bool {
    return !s.Unlimited() && s.ReservedCount >= *s.Capacity
}

// InWindow reports whether now lies inside the application window.  Both
// ends are inclusive.
func (s Schedule) InWindow(now time.Time) bool {
    return !now.Before(s.ApplyStartAt) && !now.After(s.ApplyEndAt)
}

// ComputeStatus derives the schedule status from the application window
// and capacity at instant now.  The stored Status field is ignored.
func ComputeStatus(s Schedule, now time.Time) ScheduleStatus {
    if !s.InWindow(now) || s.Full() {
        return ScheduleClosed
    }
    return ScheduleReservable
}
