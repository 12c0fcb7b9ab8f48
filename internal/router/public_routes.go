package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/explanation-reservation/internal/handler"
)

// RegisterPublic registers the guest endpoints under /v1/explanations.
// Catalog reads go through the response cache; every write and the
// applicant lookup are rate limited.
func RegisterPublic(e *echo.Echo, h *handler.PublicHandler, cache, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/explanations")

	g.GET("", h.ListEvents, cache)
	g.GET("/schedules/reservable", h.ReservableSchedules)
	g.GET("/:id", h.GetEvent, cache)

	g.POST("/reservations", h.Reserve, limit)
	g.POST("/reservations/lookup", h.Lookup, limit)
	g.POST("/reservations/:id/cancel", h.Cancel, limit)
}
