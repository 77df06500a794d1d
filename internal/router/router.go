package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-sync/internal/handler"
	"github.com/iliyamo/showtime-sync/internal/middleware"
)

// Deps carries the middleware shared by route groups.  Nil entries are
// skipped.
type Deps struct {
	JWTSecret string
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterSchedules wires the schedule API.  Read-only endpoints are public
// and cached; the sync triggers require an OPERATOR token and are rate
// limited.
func RegisterSchedules(e *echo.Echo, h *handler.ScheduleHandler, d Deps) {
	cached := optional(d.Cache)
	e.GET("/v1/rules/parse", handler.ParseRule, cached...)
	e.GET("/v1/performances/:id/schedules/preview", h.Preview, cached...)
	e.GET("/v1/performances/:id/calendar.ics", h.Calendar, cached...)

	ops := append([]echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleOperator),
	}, optional(d.RateLimit)...)
	e.POST("/v1/performances/:id/sync", h.SyncOne, ops...)
	e.POST("/v1/sync", h.SyncAll, ops...)
}

func optional(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
