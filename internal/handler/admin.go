package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation/internal/service"
)

// AdminHandler holds administrator-only member endpoints.  Room creation
// lives on RoomHandler.
type AdminHandler struct {
	Bookings *service.BookingService
}

// NewAdminHandler wires the admin endpoints to the booking service.
func NewAdminHandler(b *service.BookingService) *AdminHandler {
	return &AdminHandler{Bookings: b}
}

type recordViolationReq struct {
	BookingID *uint64 `json:"booking_id"`
	Content   string  `json:"content"`
	Penalty   int     `json:"penalty"`
}

// RecordViolation appends an ADMINISTRATIVE_ACTION violation to the :id
// member and deducts the penalty from their credit.
func (h *AdminHandler) RecordViolation(c echo.Context) error {
	adminID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	memberID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	var req recordViolationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	v, err := h.Bookings.RecordViolation(c.Request().Context(), adminID, memberID, req.BookingID, req.Content, req.Penalty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// MemberViolations lists the :id member's violations.
func (h *AdminHandler) MemberViolations(c echo.Context) error {
	adminID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	memberID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	return listViolations(c, h.Bookings, adminID, memberID)
}

// MemberBookings lists the :id member's bookings.
func (h *AdminHandler) MemberBookings(c echo.Context) error {
	adminID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	memberID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid member id")
	}
	return listBookings(c, h.Bookings, adminID, memberID)
}
