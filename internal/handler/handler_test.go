package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/explanation-reservation/internal/middleware"
	"github.com/iliyamo/explanation-reservation/internal/model"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/service"
)

type reserverFake struct {
	reserved []service.ReserveRequest
	canceled []service.CancelRequest
	err      error
}

func (f *reserverFake) Reserve(_ context.Context, req service.ReserveRequest) (model.Reservation, error) {
	f.reserved = append(f.reserved, req)
	if f.err != nil {
		return model.Reservation{}, f.err
	}
	return model.Reservation{ID: 1, ScheduleID: req.ScheduleID, ApplicantName: req.ApplicantName, Status: model.ReservationConfirmed}, nil
}

func (f *reserverFake) Cancel(_ context.Context, req service.CancelRequest) (model.Reservation, error) {
	f.canceled = append(f.canceled, req)
	if f.err != nil {
		return model.Reservation{}, f.err
	}
	return model.Reservation{ID: req.ReservationID, Status: model.ReservationCanceled}, nil
}

type catalogFake struct {
	query       repository.EventSearchQuery
	deleted     []uint64
	scheduleErr error
	memo        string
	threshold   float64
	filter      repository.ReservationFilter
}

func (f *catalogFake) ListEvents(_ context.Context, q repository.EventSearchQuery) (service.EventPage, error) {
	f.query = q
	return service.EventPage{Page: q.Page.Number, Size: q.Page.Size}, nil
}

func (f *catalogFake) GetEvent(_ context.Context, id uint64, public bool) (service.EventView, error) {
	if id == 404 || (public && id == 403) {
		return service.EventView{}, service.ErrNotFound
	}
	return service.EventView{Event: model.Event{ID: id, Title: "Open house"}}, nil
}

func (f *catalogFake) CreateEvent(_ context.Context, in service.EventInput, _ uint64) (model.Event, error) {
	return model.Event{ID: 9, Division: in.Division, Title: in.Title}, nil
}

func (f *catalogFake) UpdateEvent(_ context.Context, id uint64, in service.EventInput, _ uint64) (model.Event, error) {
	return model.Event{ID: id, Title: in.Title}, nil
}

func (f *catalogFake) SetPublished(context.Context, uint64, bool, uint64) error { return nil }

func (f *catalogFake) DeleteEvent(_ context.Context, id uint64, _ uint64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *catalogFake) CreateSchedule(_ context.Context, eventID uint64, in service.ScheduleInput, _ uint64) (model.Schedule, error) {
	if f.scheduleErr != nil {
		return model.Schedule{}, f.scheduleErr
	}
	return model.Schedule{ID: 3, EventID: eventID, RoundNo: in.RoundNo}, nil
}

func (f *catalogFake) UpdateSchedule(_ context.Context, id uint64, in service.ScheduleInput, _ uint64) (model.Schedule, error) {
	return model.Schedule{ID: id, RoundNo: in.RoundNo}, nil
}

func (f *catalogFake) DeleteSchedule(context.Context, uint64, uint64) error { return nil }

func (f *catalogFake) UpdateReservationMemo(_ context.Context, _ uint64, memo string) error {
	f.memo = memo
	return nil
}

func (f *catalogFake) Search(_ context.Context, flt repository.ReservationFilter, page repository.Page) (service.SearchResult, error) {
	f.filter = flt
	return service.SearchResult{Page: page.Number, Size: page.Size}, nil
}

func (f *catalogFake) Get(_ context.Context, id uint64) (repository.ReservationRow, error) {
	return repository.ReservationRow{Reservation: model.Reservation{ID: id}}, nil
}

func (f *catalogFake) Statistics(context.Context, uint64) (repository.ReservationStats, error) {
	return repository.ReservationStats{Total: 4, Confirmed: 3, Canceled: 1}, nil
}

func (f *catalogFake) ReservableSchedules(context.Context, uint64) ([]service.ScheduleView, error) {
	return []service.ScheduleView{{Schedule: model.Schedule{ID: 1}, IsReservable: true}}, nil
}

func (f *catalogFake) HighOccupancy(_ context.Context, threshold float64, _ int) ([]service.ScheduleView, error) {
	f.threshold = threshold
	return nil, nil
}

func (f *catalogFake) MyReservations(_ context.Context, name, _ string) ([]repository.ReservationRow, error) {
	return []repository.ReservationRow{{Reservation: model.Reservation{ID: 1, ApplicantName: name}}}, nil
}

type harness struct {
	e        *echo.Echo
	reserver *reserverFake
	catalog  *catalogFake
	hook     *test.Hook
}

// asAdmin stands in for JWTAuth.
func asAdmin(id uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.CtxUserID, id)
			c.Set(middleware.CtxRole, model.RoleAdmin)
			return next(c)
		}
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	h := &harness{e: echo.New(), reserver: &reserverFake{}, catalog: &catalogFake{}, hook: hook}
	h.e.Validator = NewRequestValidator()

	pub := NewPublicHandler(h.reserver, h.catalog, h.catalog, logger)
	h.e.GET("/v1/explanations", pub.ListEvents)
	h.e.GET("/v1/explanations/:id", pub.GetEvent)
	h.e.POST("/v1/explanations/reservations", pub.Reserve)
	h.e.POST("/v1/explanations/reservations/lookup", pub.Lookup)
	h.e.POST("/v1/explanations/reservations/:id/cancel", pub.Cancel)

	adm := NewAdminHandler(h.reserver, h.catalog, h.catalog, logger, 80)
	g := h.e.Group("/v1/admin", asAdmin(7))
	g.POST("/explanations", adm.CreateEvent)
	g.PATCH("/explanations/:id/publish", adm.Publish)
	g.GET("/schedules/high-occupancy", adm.HighOccupancy)
	g.GET("/reservations", adm.SearchReservations)
	g.POST("/reservations/:id/cancel", adm.CancelReservation)
	g.PATCH("/reservations/:id/memo", adm.UpdateMemo)
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

const validReserve = `{"schedule_id":10,"applicant_name":"Kim","applicant_phone":"01012345678",
	"student_name":"Lee","student_phone":"010-2222-3333","gender":"FEMALE","school_name":"Seoul High","grade":"2"}`

func TestPublicReserve(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/explanations/reservations", validReserve)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, h.reserver.reserved, 1)
	got := h.reserver.reserved[0]
	assert.Equal(t, uint64(10), got.ScheduleID)
	assert.Equal(t, model.TrackUndecided, got.AcademicTrack)
	require.NotNil(t, got.StudentPhone)
	assert.Equal(t, "010-2222-3333", *got.StudentPhone)
	require.NotNil(t, got.Gender)
	assert.Equal(t, model.GenderFemale, *got.Gender)
	assert.NotEmpty(t, got.ClientIP)
}

func TestPublicReserve_Validation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing schedule", `{"applicant_name":"Kim","applicant_phone":"010-1234-5678"}`, "schedule_id"},
		{"missing name", `{"schedule_id":1,"applicant_phone":"010-1234-5678"}`, "applicant_name"},
		{"bad phone", `{"schedule_id":1,"applicant_name":"Kim","applicant_phone":"02-123-4567"}`, "applicant_phone"},
		{"long name", fmt.Sprintf(`{"schedule_id":1,"applicant_name":"%s","applicant_phone":"010-1234-5678"}`, strings.Repeat("a", 81)), "applicant_name"},
		{"bad gender", `{"schedule_id":1,"applicant_name":"Kim","applicant_phone":"010-1234-5678","gender":"OTHER"}`, "gender"},
		{"bad student phone", `{"schedule_id":1,"applicant_name":"Kim","applicant_phone":"010-1234-5678","student_phone":"123"}`, "student_phone"},
		{"long memo", fmt.Sprintf(`{"schedule_id":1,"applicant_name":"Kim","applicant_phone":"010-1234-5678","memo":"%s"}`, strings.Repeat("m", 256)), "memo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(http.MethodPost, "/v1/explanations/reservations", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"INVALID_INPUT"`)
			assert.Contains(t, rec.Body.String(), `"`+tc.field+`"`)
			assert.Empty(t, h.reserver.reserved)
		})
	}
}

func TestPublicReserve_MalformedBody(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/explanations/reservations", `{"schedule_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrCapacityFull, http.StatusConflict, service.CodeCapacityFull},
		{service.ErrDuplicateReservation, http.StatusConflict, service.CodeDuplicateReservation},
		{service.ErrWindowNotOpen, http.StatusUnprocessableEntity, service.CodeWindowNotOpen},
		{service.ErrNotFound, http.StatusNotFound, service.CodeNotFound},
		{service.ErrForbidden, http.StatusForbidden, service.CodeForbidden},
		{fmt.Errorf("%w: round 1 already exists", service.ErrConflict), http.StatusConflict, service.CodeConflict},
		{service.ErrLockTimeout, http.StatusServiceUnavailable, service.CodeLockTimeout},
		{service.ErrConsistencyViolation, http.StatusInternalServerError, service.CodeConsistencyViolation},
		{errors.New("dial tcp: refused"), http.StatusInternalServerError, service.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t)
			h.reserver.err = tc.err
			rec := h.do(http.MethodPost, "/v1/explanations/reservations", validReserve)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tc.code+`"`)
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	h := newHarness(t)
	h.reserver.err = errors.New("Error 1146: Table 'explanation_reservations' doesn't exist")
	rec := h.do(http.MethodPost, "/v1/explanations/reservations", validReserve)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "1146")
	assert.Contains(t, rec.Body.String(), "internal error")
	require.NotNil(t, h.hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, h.hook.LastEntry().Level)
}

func TestWriteError_LockTimeoutRetryAfter(t *testing.T) {
	h := newHarness(t)
	h.reserver.err = service.ErrLockTimeout
	rec := h.do(http.MethodPost, "/v1/explanations/reservations", validReserve)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestPublicCancel(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/explanations/reservations/5/cancel", `{"applicant_name":"Kim","applicant_phone":"010-1234-5678"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.reserver.canceled, 1)
	got := h.reserver.canceled[0]
	assert.Equal(t, uint64(5), got.ReservationID)
	assert.Equal(t, model.CanceledByUser, got.By)
	assert.Zero(t, got.ActorID)

	rec = h.do(http.MethodPost, "/v1/explanations/reservations/abc/cancel", `{"applicant_name":"Kim","applicant_phone":"010-1234-5678"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicBrowse(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/explanations?division=high&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.catalog.query.PublishedOnly)
	assert.Equal(t, model.DivisionHigh, h.catalog.query.Division)
	assert.Equal(t, 2, h.catalog.query.Page.Number)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/explanations?division=ELEMENTARY", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/explanations/403", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/explanations/1", "").Code)
}

func TestPublicLookup(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/explanations/reservations/lookup", `{"applicant_name":"Kim","applicant_phone":"010-1234-5678"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applicant_name":"Kim"`)

	rec = h.do(http.MethodPost, "/v1/explanations/reservations/lookup", `{"applicant_name":"Kim"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCancelUsesActor(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/admin/reservations/8/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.reserver.canceled, 1)
	assert.Equal(t, model.CanceledByAdmin, h.reserver.canceled[0].By)
	assert.Equal(t, uint64(7), h.reserver.canceled[0].ActorID)
}

func TestAdminCreateEvent(t *testing.T) {
	body := `{"division":"HIGH","title":"Open house","schedules":[
		{"round_no":1,"start_at":"2026-03-20T10:00:00Z","apply_start_at":"2026-03-01T09:00:00Z","apply_end_at":"2026-03-10T18:00:00Z","capacity":30}]}`

	t.Run("created", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/v1/admin/explanations", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Empty(t, h.catalog.deleted)
	})

	t.Run("schedule failure deletes event", func(t *testing.T) {
		h := newHarness(t)
		h.catalog.scheduleErr = fmt.Errorf("%w: round 1 already exists", service.ErrConflict)
		rec := h.do(http.MethodPost, "/v1/admin/explanations", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, []uint64{9}, h.catalog.deleted)
	})

	t.Run("schedule validation", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(http.MethodPost, "/v1/admin/explanations", `{"division":"HIGH","title":"x","schedules":[{"round_no":0}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "round_no")
	})
}

func TestAdminPublishRequiresFlag(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/v1/admin/explanations/1/publish", `{}`).Code)

	rec := h.do(http.MethodPatch, "/v1/admin/explanations/1/publish", `{"published":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"published":false`)
}

func TestAdminHighOccupancyThreshold(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/admin/schedules/high-occupancy", "").Code)
	assert.Equal(t, 80.0, h.catalog.threshold)

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/admin/schedules/high-occupancy?threshold=95.5", "").Code)
	assert.Equal(t, 95.5, h.catalog.threshold)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/admin/schedules/high-occupancy?threshold=lots", "").Code)
}

func TestAdminSearchReservations(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/admin/reservations?explanation_id=2&status=canceled&from=2026-03-01&page=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(2), h.catalog.filter.EventID)
	assert.Equal(t, model.ReservationCanceled, h.catalog.filter.Status)
	require.NotNil(t, h.catalog.filter.CreatedFrom)
	assert.Equal(t, 2026, h.catalog.filter.CreatedFrom.Year())
	assert.Contains(t, rec.Body.String(), `"page":3`)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/admin/reservations?status=PENDING", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/admin/reservations?from=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/admin/reservations?schedule_id=-1", "").Code)
}

func TestAdminUpdateMemo(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPatch, "/v1/admin/reservations/3/memo", `{"memo":"called back"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "called back", h.catalog.memo)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/readyz", Ready(pingerFunc(func(context.Context) error { return errors.New("down") })))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
