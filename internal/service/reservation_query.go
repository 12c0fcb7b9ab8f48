package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/utils"
)

// ReservationReader is the read side of the reservation store.
type ReservationReader interface {
	Search(ctx context.Context, f repository.ReservationFilter, page repository.Page) ([]repository.ReservationRow, int64, error)
	Get(ctx context.Context, id uint64) (repository.ReservationRow, error)
	ListByApplicant(ctx context.Context, name, phone string) ([]repository.ReservationRow, error)
	Statistics(ctx context.Context, eventID uint64) (repository.ReservationStats, error)
}

// ScheduleReader is the read side of the schedule store.
type ScheduleReader interface {
	Reservable(ctx context.Context, eventID uint64, now time.Time) ([]repository.ScheduleRow, error)
	HighOccupancy(ctx context.Context, thresholdPercent float64, limit int) ([]repository.ScheduleRow, error)
}

// ScheduleView is a schedule as presented to clients. IsReservable is
// derived at read time and ignores the cached Status column.
type ScheduleView struct {
	model.Schedule
	EventTitle   string         `json:"event_title,omitempty"`
	Division     model.Division `json:"division,omitempty"`
	Remaining    int            `json:"remaining"`
	Occupancy    float64        `json:"occupancy_percent"`
	IsReservable bool           `json:"is_reservable"`
}

func newScheduleView(s model.Schedule, eventReservable bool, now time.Time) ScheduleView {
	return ScheduleView{
		Schedule:     s,
		Remaining:    s.Remaining(),
		Occupancy:    s.OccupancyPercent(),
		IsReservable: eventReservable && model.ComputeStatus(s, now) == model.ScheduleReservable,
	}
}

// SearchResult is one page of an admin reservation search.
type SearchResult struct {
	Items []repository.ReservationRow `json:"items"`
	Total int64                       `json:"total"`
	Page  int                         `json:"page"`
	Size  int                         `json:"size"`
}

// QueryService answers read-only questions about reservations and
// schedules. It never takes row locks.
type QueryService struct {
	reservations ReservationReader
	schedules    ScheduleReader
	now          func() time.Time
	log          *logrus.Logger
}

// NewQueryService builds a QueryService. A nil logger falls back to the
// logrus standard logger.
func NewQueryService(reservations ReservationReader, schedules ScheduleReader, log *logrus.Logger) *QueryService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QueryService{reservations: reservations, schedules: schedules, now: time.Now, log: log}
}

// Search runs an admin search. Applicant phones are masked in the result.
func (q *QueryService) Search(ctx context.Context, f repository.ReservationFilter, page repository.Page) (SearchResult, error) {
	if f.ApplicantPhone != "" {
		f.ApplicantPhone = utils.NormalizePhone(f.ApplicantPhone)
	}
	f.ApplicantName = strings.TrimSpace(f.ApplicantName)
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return SearchResult{}, ErrInvalidInput
	}
	page = page.Normalize()
	rows, total, err := q.reservations.Search(ctx, f, page)
	if err != nil {
		q.log.WithError(err).Error("reservation search failed")
		return SearchResult{}, err
	}
	for i := range rows {
		rows[i].ApplicantPhone = utils.MaskPhone(rows[i].ApplicantPhone)
	}
	return SearchResult{Items: rows, Total: total, Page: page.Number, Size: page.Size}, nil
}

// Get returns one reservation in full for the admin detail view.
func (q *QueryService) Get(ctx context.Context, id uint64) (repository.ReservationRow, error) {
	return q.reservations.Get(ctx, id)
}

// MyReservations lists what an applicant booked. Both name and phone must
// match, so one applicant never sees another's rows.
func (q *QueryService) MyReservations(ctx context.Context, name, phone string) ([]repository.ReservationRow, error) {
	name = strings.TrimSpace(name)
	phone = utils.NormalizePhone(phone)
	if name == "" || !utils.ValidPhone(phone) {
		return nil, ErrInvalidInput
	}
	return q.reservations.ListByApplicant(ctx, name, phone)
}

// ReservableSchedules lists schedules open for reservation right now.
// eventID 0 covers every published event.
func (q *QueryService) ReservableSchedules(ctx context.Context, eventID uint64) ([]ScheduleView, error) {
	now := q.now()
	rows, err := q.schedules.Reservable(ctx, eventID, now)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleView, 0, len(rows))
	for _, r := range rows {
		v := newScheduleView(r.Schedule, true, now)
		// the query ran an instant earlier; drop rows that closed since
		if !v.IsReservable {
			continue
		}
		v.EventTitle, v.Division = r.EventTitle, r.Division
		out = append(out, v)
	}
	return out, nil
}

// HighOccupancy lists limited schedules at or above thresholdPercent.
func (q *QueryService) HighOccupancy(ctx context.Context, thresholdPercent float64, limit int) ([]ScheduleView, error) {
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := q.schedules.HighOccupancy(ctx, thresholdPercent, limit)
	if err != nil {
		return nil, err
	}
	now := q.now()
	out := make([]ScheduleView, 0, len(rows))
	for _, r := range rows {
		v := newScheduleView(r.Schedule, true, now)
		v.EventTitle, v.Division = r.EventTitle, r.Division
		out = append(out, v)
	}
	return out, nil
}

// Statistics returns reservation counts for one event, or all events when
// eventID is 0.
func (q *QueryService) Statistics(ctx context.Context, eventID uint64) (repository.ReservationStats, error) {
	return q.reservations.Statistics(ctx, eventID)
}
