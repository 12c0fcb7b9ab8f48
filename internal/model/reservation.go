package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.  There is no
// pending state; a reservation is created CONFIRMED or not at all.
type ReservationStatus string

const (
    ReservationConfirmed ReservationStatus = "CONFIRMED"
    ReservationCanceled  ReservationStatus = "CANCELED"
)

// CanceledBy records who canceled a reservation.
type CanceledBy string

const (
    CanceledByUser  CanceledBy = "USER"
    CanceledByAdmin CanceledBy = "ADMIN"
)

// Gender of the student attending the session.
type Gender string

const (
    GenderMale   Gender = "MALE"
    GenderFemale Gender = "FEMALE"
)

// AcademicTrack of the student.  UNDECIDED is the default.
type AcademicTrack string

const (
    TrackLiberalArts AcademicTrack = "LIBERAL_ARTS"
    TrackScience     AcademicTrack = "SCIENCE"
    TrackUndecided   AcademicTrack = "UNDECIDED"
)

// Reservation is one applicant's claim on one seat of a schedule.  For a
// given (ScheduleID, ApplicantPhone) at most one row is CONFIRMED at any
// time.  Rows are never physically deleted.
//
// Fields:
//  ID             – primary key identifier.
//  ScheduleID     – reserved schedule.
//  ApplicantName  – parent or guardian submitting the form.
//  ApplicantPhone – contact phone, 010-0000-0000 format.
//  StudentName    – attending student.
//  Status         – CONFIRMED or CANCELED.
//  CanceledBy     – USER or ADMIN once canceled.
//  CanceledAt     – cancellation timestamp.
type Reservation struct {
    ID             uint64            `db:"id" json:"id"`                               // explanation_reservations.id
    ScheduleID     uint64            `db:"schedule_id" json:"schedule_id"`             // explanation_reservations.schedule_id
    ApplicantName  string            `db:"applicant_name" json:"applicant_name"`       // explanation_reservations.applicant_name
    ApplicantPhone string            `db:"applicant_phone" json:"applicant_phone"`     // explanation_reservations.applicant_phone
    StudentName    string            `db:"student_name" json:"student_name"`           // explanation_reservations.student_name
    StudentPhone   *string           `db:"student_phone" json:"student_phone"`         // explanation_reservations.student_phone (nullable)
    Gender         *Gender           `db:"gender" json:"gender"`                       // explanation_reservations.gender (nullable)
    AcademicTrack  AcademicTrack     `db:"academic_track" json:"academic_track"`       // explanation_reservations.academic_track
    SchoolName     string            `db:"school_name" json:"school_name"`             // explanation_reservations.school_name
    Grade          string            `db:"grade" json:"grade"`                         // explanation_reservations.grade
    Memo           *string           `db:"memo" json:"memo"`                           // explanation_reservations.memo (nullable)
    MarketingAgree bool              `db:"is_marketing_agree" json:"marketing_agree"`  // explanation_reservations.is_marketing_agree
    ClientIP       string            `db:"client_ip" json:"-"`                         // explanation_reservations.client_ip
    Status         ReservationStatus `db:"status" json:"status"`                       // explanation_reservations.status
    CanceledBy     *CanceledBy       `db:"canceled_by" json:"canceled_by"`             // explanation_reservations.canceled_by (nullable)
    CanceledAt     *time.Time        `db:"canceled_at" json:"canceled_at"`             // explanation_reservations.canceled_at (nullable)
    CreatedAt      time.Time         `db:"created_at" json:"created_at"`               // explanation_reservations.created_at
    UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`               // explanation_reservations.updated_at
}

// Confirmed reports whether the reservation currently holds a seat.
func (r Reservation) Confirmed() bool {
    return r.Status == ReservationConfirmed
}
