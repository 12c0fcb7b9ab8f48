package model

import "time"

// Division identifies the audience segment an explanation event targets.
type Division string

const (
    DivisionMiddle          Division = "MIDDLE"
    DivisionHigh            Division = "HIGH"
    DivisionSelfStudyRetake Division = "SELF_STUDY_RETAKE"
)

// Valid reports whether d is one of the known divisions.
func (d Division) Valid() bool {
    switch d {
    case DivisionMiddle, DivisionHigh, DivisionSelfStudyRetake:
        return true
    }
    return false
}

// Event is an explanation (orientation / open-house) event.  One event
// owns zero or more schedules.  Events are only ever deleted logically
// by setting DeletedAt.
//
// Fields:
//  ID        – primary key identifier.
//  Division  – audience segment (MIDDLE, HIGH, SELF_STUDY_RETAKE).
//  Title     – headline shown to applicants.
//  Content   – free-form body text.
//  Published – whether the event is visible and reservable by the public.
//  Pinned    – whether the event is pinned at the top of listings.
//  ViewCount – number of public detail views.
//  DeletedAt – logical deletion timestamp (nil while live).
type Event struct {
    ID        uint64     `db:"id" json:"id"`                 // explanation_events.id
    Division  Division   `db:"division" json:"division"`     // explanation_events.division
    Title     string     `db:"title" json:"title"`           // explanation_events.title
    Content   string     `db:"content" json:"content"`       // explanation_events.content
    Published bool       `db:"is_published" json:"published"` // explanation_events.is_published
    Pinned    bool       `db:"is_pinned" json:"pinned"`      // explanation_events.is_pinned
    ViewCount uint64     `db:"view_count" json:"view_count"` // explanation_events.view_count
    CreatedBy *uint64    `db:"created_by" json:"-"`          // explanation_events.created_by (nullable)
    UpdatedBy *uint64    `db:"updated_by" json:"-"`          // explanation_events.updated_by (nullable)
    DeletedAt *time.Time `db:"deleted_at" json:"-"`          // explanation_events.deleted_at (nullable)
    CreatedAt time.Time  `db:"created_at" json:"created_at"` // explanation_events.created_at
    UpdatedAt time.Time  `db:"updated_at" json:"updated_at"` // explanation_events.updated_at
}

// Reservable reports whether the event accepts reservations at all.  An
// unpublished or deleted event hides every schedule it owns.
func (e Event) Reservable() bool {
    return e.Published && e.DeletedAt == nil
}
