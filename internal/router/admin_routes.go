package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/explanation-reservation/internal/handler"
	"github.com/iliyamo/explanation-reservation/internal/middleware"
	"github.com/iliyamo/explanation-reservation/internal/model"
)

// RegisterAdmin registers back-office endpoints under /v1/admin. All
// routes require a valid JWT and an admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleSuperAdmin),
	)

	// events
	g.GET("/explanations", h.ListEvents)
	g.POST("/explanations", h.CreateEvent)
	g.GET("/explanations/:id", h.GetEvent)
	g.PUT("/explanations/:id", h.UpdateEvent)
	g.PATCH("/explanations/:id/publish", h.Publish)
	g.DELETE("/explanations/:id", h.DeleteEvent)

	// schedules
	g.POST("/explanations/:id/schedules", h.CreateSchedule)
	g.GET("/schedules/reservable", h.ReservableSchedules)
	g.GET("/schedules/high-occupancy", h.HighOccupancy)
	g.PUT("/schedules/:id", h.UpdateSchedule)
	g.DELETE("/schedules/:id", h.DeleteSchedule)

	registerAdminReservations(g, h)
}

// registerAdminReservations mounts reservation management: search,
// detail, forced cancellation, memo edits and statistics.
func registerAdminReservations(g *echo.Group, h *handler.AdminHandler) {
	g.GET("/reservations", h.SearchReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.POST("/reservations/:id/cancel", h.CancelReservation)
	g.PATCH("/reservations/:id/memo", h.UpdateMemo)
	g.GET("/statistics", h.Statistics)
}
