package handler // package handler contains the HTTP handlers of the admin API

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is a liveness check for load balancers and monitoring.  It
// returns a plain text "ok" with HTTP 200.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
