package handler // declare the package name; contains HTTP handlers

import (
	"net/http" // net/http provides status codes and response helpers

	"github.com/labstack/echo/v4" // echo is the web framework used for this project

	"github.com/iliyamo/seat-reservation/internal/service"
)

// SweepStatusReporter is satisfied by *service.Sweeper.
type SweepStatusReporter interface {
	Status() service.SweepStatus
}

// Health reports liveness for load balancers.  When a sweeper is attached
// its last cycle is included and a failed cycle turns the response into
// 503 so monitoring notices stuck reconciliation.
func Health(sweeper SweepStatusReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sweeper == nil {
			return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
		}
		st := sweeper.Status()
		if !st.Healthy() {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "sweeper": st})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "sweeper": st})
	}
}
