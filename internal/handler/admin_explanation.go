package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/middleware"
	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/service"
)

// CatalogAdmin is the back-office side of *service.EventCatalog.
type CatalogAdmin interface {
	CatalogReader
	CreateEvent(ctx context.Context, in service.EventInput, actorID uint64) (model.Event, error)
	UpdateEvent(ctx context.Context, id uint64, in service.EventInput, actorID uint64) (model.Event, error)
	SetPublished(ctx context.Context, id uint64, published bool, actorID uint64) error
	DeleteEvent(ctx context.Context, id uint64, actorID uint64) error
	CreateSchedule(ctx context.Context, eventID uint64, in service.ScheduleInput, actorID uint64) (model.Schedule, error)
	UpdateSchedule(ctx context.Context, id uint64, in service.ScheduleInput, actorID uint64) (model.Schedule, error)
	DeleteSchedule(ctx context.Context, id uint64, actorID uint64) error
	UpdateReservationMemo(ctx context.Context, id uint64, memo string) error
}

// AdminQueries is the back-office side of *service.QueryService.
type AdminQueries interface {
	Search(ctx context.Context, f repository.ReservationFilter, page repository.Page) (service.SearchResult, error)
	Get(ctx context.Context, id uint64) (repository.ReservationRow, error)
	Statistics(ctx context.Context, eventID uint64) (repository.ReservationStats, error)
	ReservableSchedules(ctx context.Context, eventID uint64) ([]service.ScheduleView, error)
	HighOccupancy(ctx context.Context, thresholdPercent float64, limit int) ([]service.ScheduleView, error)
}

// AdminHandler serves /v1/admin. Every route runs behind JWTAuth and
// RequireRole, so ActorID is always set.
type AdminHandler struct {
	Reservations     Reserver
	Catalog          CatalogAdmin
	Queries          AdminQueries
	Log              *logrus.Logger
	DefaultThreshold float64
}

func NewAdminHandler(r Reserver, cat CatalogAdmin, q AdminQueries, log *logrus.Logger, threshold float64) *AdminHandler {
	return &AdminHandler{Reservations: r, Catalog: cat, Queries: q, Log: log, DefaultThreshold: threshold}
}

// ----- DTOs -----

type scheduleReq struct {
	RoundNo      int       `json:"round_no" validate:"required,min=1"`
	StartAt      time.Time `json:"start_at" validate:"required"`
	EndAt        time.Time `json:"end_at"`
	Location     string    `json:"location" validate:"max=255"`
	ApplyStartAt time.Time `json:"apply_start_at" validate:"required"`
	ApplyEndAt   time.Time `json:"apply_end_at" validate:"required"`
	Capacity     *int      `json:"capacity" validate:"omitempty,min=0"`
}

func (r scheduleReq) input() service.ScheduleInput {
	return service.ScheduleInput{
		RoundNo:      r.RoundNo,
		StartAt:      r.StartAt,
		EndAt:        r.EndAt,
		Location:     r.Location,
		ApplyStartAt: r.ApplyStartAt,
		ApplyEndAt:   r.ApplyEndAt,
		Capacity:     r.Capacity,
	}
}

type eventReq struct {
	Division  string        `json:"division" validate:"required,oneof=MIDDLE HIGH SELF_STUDY_RETAKE"`
	Title     string        `json:"title" validate:"required,max=255"`
	Content   string        `json:"content"`
	Pinned    bool          `json:"pinned"`
	Published bool          `json:"published"`
	Schedules []scheduleReq `json:"schedules" validate:"omitempty,dive"`
}

func (r eventReq) input() service.EventInput {
	return service.EventInput{
		Division:  model.Division(r.Division),
		Title:     r.Title,
		Content:   r.Content,
		Pinned:    r.Pinned,
		Published: r.Published,
	}
}

type publishReq struct {
	Published *bool `json:"published" validate:"required"`
}

type memoReq struct {
	Memo string `json:"memo" validate:"max=255"`
}

// ----- events -----

// CreateEvent: POST /v1/admin/explanations
//
// Initial schedules may be sent with the event. A failing schedule rolls
// the new event back by deleting it.
func (h *AdminHandler) CreateEvent(c echo.Context) error {
	var req eventReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, actor := c.Request().Context(), middleware.ActorID(c)
	e, err := h.Catalog.CreateEvent(ctx, req.input(), actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	for _, s := range req.Schedules {
		if _, err := h.Catalog.CreateSchedule(ctx, e.ID, s.input(), actor); err != nil {
			if derr := h.Catalog.DeleteEvent(ctx, e.ID, actor); derr != nil {
				h.Log.WithError(derr).WithField("event_id", e.ID).Error("rollback of partially created event failed")
			}
			return writeError(c, h.Log, err)
		}
	}
	v, err := h.Catalog.GetEvent(ctx, e.ID, false)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// ListEvents: GET /v1/admin/explanations?division=&keyword=&published=
func (h *AdminHandler) ListEvents(c echo.Context) error {
	q := repository.EventSearchQuery{
		Division: model.Division(strings.ToUpper(strings.TrimSpace(c.QueryParam("division")))),
		Keyword:  strings.TrimSpace(c.QueryParam("keyword")),
		Page:     queryPage(c),
	}
	if q.Division != "" && !q.Division.Valid() {
		return writeError(c, h.Log, service.ErrInvalidInput)
	}
	q.PublishedOnly, _ = strconv.ParseBool(c.QueryParam("published"))
	page, err := h.Catalog.ListEvents(c.Request().Context(), q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetEvent: GET /v1/admin/explanations/:id
func (h *AdminHandler) GetEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	v, err := h.Catalog.GetEvent(c.Request().Context(), id, false)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// UpdateEvent: PUT /v1/admin/explanations/:id
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req eventReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	e, err := h.Catalog.UpdateEvent(c.Request().Context(), id, req.input(), middleware.ActorID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Publish: PATCH /v1/admin/explanations/:id/publish
func (h *AdminHandler) Publish(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req publishReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Catalog.SetPublished(c.Request().Context(), id, *req.Published, middleware.ActorID(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "published": *req.Published})
}

// DeleteEvent: DELETE /v1/admin/explanations/:id
func (h *AdminHandler) DeleteEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Catalog.DeleteEvent(c.Request().Context(), id, middleware.ActorID(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- schedules -----

// CreateSchedule: POST /v1/admin/explanations/:id/schedules
func (h *AdminHandler) CreateSchedule(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req scheduleReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	s, err := h.Catalog.CreateSchedule(c.Request().Context(), eventID, req.input(), middleware.ActorID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// UpdateSchedule: PUT /v1/admin/schedules/:id
func (h *AdminHandler) UpdateSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req scheduleReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	s, err := h.Catalog.UpdateSchedule(c.Request().Context(), id, req.input(), middleware.ActorID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// DeleteSchedule: DELETE /v1/admin/schedules/:id
func (h *AdminHandler) DeleteSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Catalog.DeleteSchedule(c.Request().Context(), id, middleware.ActorID(c)); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReservableSchedules: GET /v1/admin/schedules/reservable?explanation_id=
func (h *AdminHandler) ReservableSchedules(c echo.Context) error {
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

// HighOccupancy: GET /v1/admin/schedules/high-occupancy?threshold=&limit=
func (h *AdminHandler) HighOccupancy(c echo.Context) error {
	threshold := h.DefaultThreshold
	if raw := strings.TrimSpace(c.QueryParam("threshold")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return writeError(c, h.Log, service.ErrInvalidInput)
		}
		threshold = v
	}
	views, err := h.Queries.HighOccupancy(c.Request().Context(), threshold, queryInt(c, "limit", 20))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"threshold": threshold, "items": views})
}

// ----- reservations -----

// SearchReservations: GET /v1/admin/reservations
func (h *AdminHandler) SearchReservations(c echo.Context) error {
	f := repository.ReservationFilter{
		ApplicantName:  c.QueryParam("applicant_name"),
		ApplicantPhone: strings.TrimSpace(c.QueryParam("applicant_phone")),
		Keyword:        strings.TrimSpace(c.QueryParam("keyword")),
		Status:         model.ReservationStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
	}
	var err error
	if f.EventID, err = queryUint(c, "explanation_id"); err != nil {
		return writeError(c, h.Log, err)
	}
	if f.ScheduleID, err = queryUint(c, "schedule_id"); err != nil {
		return writeError(c, h.Log, err)
	}
	if f.CreatedFrom, err = queryTime(c, "from"); err != nil {
		return writeError(c, h.Log, err)
	}
	if f.CreatedTo, err = queryTime(c, "to"); err != nil {
		return writeError(c, h.Log, err)
	}
	switch f.Status {
	case "", model.ReservationConfirmed, model.ReservationCanceled:
	default:
		return writeError(c, h.Log, service.ErrInvalidInput)
	}
	res, err := h.Queries.Search(c.Request().Context(), f, queryPage(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetReservation: GET /v1/admin/reservations/:id
func (h *AdminHandler) GetReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	row, err := h.Queries.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, row)
}

// CancelReservation: POST /v1/admin/reservations/:id/cancel
func (h *AdminHandler) CancelReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Reservations.Cancel(c.Request().Context(), service.CancelRequest{
		ReservationID: id,
		By:            model.CanceledByAdmin,
		ActorID:       middleware.ActorID(c),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateMemo: PATCH /v1/admin/reservations/:id/memo
func (h *AdminHandler) UpdateMemo(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req memoReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Catalog.UpdateReservationMemo(c.Request().Context(), id, req.Memo); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Statistics: GET /v1/admin/statistics?explanation_id=
func (h *AdminHandler) Statistics(c echo.Context) error {
	eventID, err := queryUint(c, "explanation_id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	stats, err := h.Queries.Statistics(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, stats)
}
