package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation/internal/middleware"
	"github.com/iliyamo/seat-reservation/internal/service"
)

var kindStatus = map[service.Kind]int{
	service.KindNotFound:       http.StatusNotFound,
	service.KindConflict:       http.StatusConflict,
	service.KindForbidden:      http.StatusForbidden,
	service.KindInvalidRequest: http.StatusBadRequest,
}

// writeError renders a service error as {"error", "code"}.  Unclassified
// errors are logged and reported as 500 without their detail.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		if status, ok := kindStatus[se.Kind]; ok {
			return c.JSON(status, echo.Map{"error": se.Message, "code": string(se.Kind)})
		}
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": string(service.KindInvalidRequest)})
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "code": "UNAUTHORIZED"})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// caller returns the member id placed in the context by JWTAuth.
func caller(c echo.Context) (uint64, bool) {
	return middleware.MemberID(c)
}
