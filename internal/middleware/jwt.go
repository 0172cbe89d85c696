package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/seat-reservation/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ctxMemberID = "member_id"
	ctxRole     = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the member id (uint64) and role claim in the request context.
// Handlers read them back with MemberID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "UNAUTHORIZED"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			id, role, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHORIZED"})
			}
			c.Set(ctxMemberID, id)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}
