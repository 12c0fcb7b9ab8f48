package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/service"
	"github.com/iliyamo/explanation-reservation/internal/utils"
)

// Reserver is the write side used by both public and admin handlers;
// *service.Coordinator satisfies it.
type Reserver interface {
	Reserve(ctx context.Context, req service.ReserveRequest) (model.Reservation, error)
	Cancel(ctx context.Context, req service.CancelRequest) (model.Reservation, error)
}

// CatalogReader is the browse side of *service.EventCatalog.
type CatalogReader interface {
	ListEvents(ctx context.Context, q repository.EventSearchQuery) (service.EventPage, error)
	GetEvent(ctx context.Context, id uint64, public bool) (service.EventView, error)
}

// ApplicantQueries is the part of *service.QueryService guests may call.
type ApplicantQueries interface {
	MyReservations(ctx context.Context, name, phone string) ([]repository.ReservationRow, error)
	ReservableSchedules(ctx context.Context, eventID uint64) ([]service.ScheduleView, error)
}

// PublicHandler serves the guest-facing explanation endpoints. Guests are
// identified by applicant name and phone; no account is needed.
type PublicHandler struct {
	Reservations Reserver
	Catalog      CatalogReader
	Queries      ApplicantQueries
	Log          *logrus.Logger
}

func NewPublicHandler(r Reserver, cat CatalogReader, q ApplicantQueries, log *logrus.Logger) *PublicHandler {
	return &PublicHandler{Reservations: r, Catalog: cat, Queries: q, Log: log}
}

// ----- DTOs -----

type reserveReq struct {
	ScheduleID     uint64  `json:"schedule_id" validate:"required"`
	ApplicantName  string  `json:"applicant_name" validate:"required,max=80"`
	ApplicantPhone string  `json:"applicant_phone" validate:"required,phone"`
	StudentName    string  `json:"student_name" validate:"max=80"`
	StudentPhone   *string `json:"student_phone" validate:"omitempty,phone"`
	Gender         *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	AcademicTrack  string  `json:"academic_track" validate:"omitempty,oneof=LIBERAL_ARTS SCIENCE UNDECIDED"`
	SchoolName     string  `json:"school_name" validate:"max=120"`
	Grade          string  `json:"grade" validate:"max=20"`
	Memo           *string `json:"memo" validate:"omitempty,max=255"`
	MarketingAgree bool    `json:"marketing_agree"`
}

func (r reserveReq) toService(ip string) service.ReserveRequest {
	out := service.ReserveRequest{
		ScheduleID:     r.ScheduleID,
		ApplicantName:  r.ApplicantName,
		ApplicantPhone: r.ApplicantPhone,
		StudentName:    r.StudentName,
		AcademicTrack:  model.AcademicTrack(r.AcademicTrack),
		SchoolName:     r.SchoolName,
		Grade:          r.Grade,
		Memo:           r.Memo,
		MarketingAgree: r.MarketingAgree,
		ClientIP:       ip,
	}
	if out.AcademicTrack == "" {
		out.AcademicTrack = model.TrackUndecided
	}
	if r.StudentPhone != nil && strings.TrimSpace(*r.StudentPhone) != "" {
		p := utils.NormalizePhone(*r.StudentPhone)
		out.StudentPhone = &p
	}
	if r.Gender != nil {
		g := model.Gender(*r.Gender)
		out.Gender = &g
	}
	return out
}

type applicantReq struct {
	ApplicantName  string `json:"applicant_name" query:"applicant_name" validate:"required,max=80"`
	ApplicantPhone string `json:"applicant_phone" query:"applicant_phone" validate:"required,phone"`
}

// ListEvents: GET /v1/explanations?division=&keyword=&page=&size=
func (h *PublicHandler) ListEvents(c echo.Context) error {
	q := repository.EventSearchQuery{
		Division:      model.Division(strings.ToUpper(strings.TrimSpace(c.QueryParam("division")))),
		Keyword:       strings.TrimSpace(c.QueryParam("keyword")),
		PublishedOnly: true,
		Page:          queryPage(c),
	}
	if q.Division != "" && !q.Division.Valid() {
		return writeError(c, h.Log, service.ErrInvalidInput)
	}
	page, err := h.Catalog.ListEvents(c.Request().Context(), q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetEvent: GET /v1/explanations/:id
func (h *PublicHandler) GetEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	v, err := h.Catalog.GetEvent(c.Request().Context(), id, true)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ReservableSchedules: GET /v1/explanations/schedules/reservable?explanation_id=
func (h *PublicHandler) ReservableSchedules(c echo.Context) error {
	eventID, err := queryUint(c, "explanation_id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	views, err := h.Queries.ReservableSchedules(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Reserve: POST /v1/explanations/reservations
func (h *PublicHandler) Reserve(c echo.Context) error {
	var req reserveReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Reservations.Reserve(c.Request().Context(), req.toService(c.RealIP()))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Lookup: POST /v1/explanations/reservations/lookup
//
// The applicant's phone travels in the body so it stays out of access
// logs.
func (h *PublicHandler) Lookup(c echo.Context) error {
	var req applicantReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	rows, err := h.Queries.MyReservations(c.Request().Context(), req.ApplicantName, req.ApplicantPhone)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rows})
}

// Cancel: POST /v1/explanations/reservations/:id/cancel
func (h *PublicHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req applicantReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Reservations.Cancel(c.Request().Context(), service.CancelRequest{
		ReservationID:  id,
		By:             model.CanceledByUser,
		ApplicantName:  req.ApplicantName,
		ApplicantPhone: req.ApplicantPhone,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}
