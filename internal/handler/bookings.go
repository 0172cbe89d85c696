package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// BookingHandler exposes the booking lifecycle to authenticated members.
// Ownership is enforced by the service, so an administrator may act on
// any booking through the same routes.
type BookingHandler struct {
	Bookings *service.BookingService
}

// NewBookingHandler wires the member booking endpoints.
func NewBookingHandler(b *service.BookingService) *BookingHandler {
	return &BookingHandler{Bookings: b}
}

type createBookingReq struct {
	SeatID    uint64    `json:"seat_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type cancelReq struct {
	Force bool `json:"force"`
}

// CreateBooking reserves a seat for the caller.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	memberID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.SeatID == 0 || req.StartTime.IsZero() || req.EndTime.IsZero() {
		return badRequest(c, "seat_id, start_time and end_time are required")
	}
	b, err := h.Bookings.CreateBooking(c.Request().Context(), memberID, req.SeatID, req.StartTime, req.EndTime)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// GetBooking returns one booking.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	return h.act(c, func(bookingID, callerID uint64) (model.Booking, error) {
		return h.Bookings.GetBooking(c.Request().Context(), bookingID, callerID)
	})
}

// CancelBooking cancels a BOOKED booking.  Inside the notice period the
// body must carry {"force": true}; a penalty is then applied.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	return h.act(c, func(bookingID, callerID uint64) (model.Booking, error) {
		return h.Bookings.CancelBooking(c.Request().Context(), bookingID, callerID, req.Force)
	})
}

// CheckIn handles POST /v1/bookings/:id/check-in.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	return h.act(c, func(bookingID, callerID uint64) (model.Booking, error) {
		return h.Bookings.CheckIn(c.Request().Context(), bookingID, callerID)
	})
}

// CheckOut handles POST /v1/bookings/:id/check-out.
func (h *BookingHandler) CheckOut(c echo.Context) error {
	return h.act(c, func(bookingID, callerID uint64) (model.Booking, error) {
		return h.Bookings.CheckOut(c.Request().Context(), bookingID, callerID)
	})
}

// MyBookings lists the caller's bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	memberID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	return listBookings(c, h.Bookings, memberID, memberID)
}

// MyViolations lists the caller's violations, newest first.
func (h *BookingHandler) MyViolations(c echo.Context) error {
	memberID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	return listViolations(c, h.Bookings, memberID, memberID)
}

// act resolves the caller and the :id booking parameter, then renders
// the booking fn returns.
func (h *BookingHandler) act(c echo.Context, fn func(bookingID, callerID uint64) (model.Booking, error)) error {
	callerID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := fn(bookingID, callerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func listBookings(c echo.Context, svc *service.BookingService, callerID, memberID uint64) error {
	items, err := svc.ListMemberBookings(c.Request().Context(), callerID, memberID)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func listViolations(c echo.Context, svc *service.BookingService, callerID, memberID uint64) error {
	items, err := svc.ListMemberViolations(c.Request().Context(), callerID, memberID)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []model.Violation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
