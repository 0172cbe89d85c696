package middleware

// identity.go holds the accessors for the caller identity that JWTAuth
// places in the Echo context.  Rate limit keys use "guest" for callers
// without a token.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MemberID returns the authenticated member id, or false on public routes.
func MemberID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxMemberID).(uint64)
	return id, ok && id != 0
}

// Role returns the role claim of the authenticated member, or "".
func Role(c echo.Context) string {
	role, _ := c.Get(ctxRole).(string)
	return role
}

// identityKey is the member id as a string, "guest" when unauthenticated.
func identityKey(c echo.Context) string {
	if id, ok := MemberID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
