package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// RoomHandler serves the public room catalogue, seat availability and
// room administration.
type RoomHandler struct {
	Rooms    *service.RoomService
	Bookings *service.BookingService
	// OnCatalogChange runs after a room is created; the router points it
	// at the response cache purge.  May be nil.
	OnCatalogChange func(ctx context.Context)
}

// NewRoomHandler returns a RoomHandler; OnCatalogChange may be set afterwards.
func NewRoomHandler(rooms *service.RoomService, bookings *service.BookingService) *RoomHandler {
	return &RoomHandler{Rooms: rooms, Bookings: bookings}
}

type createRoomReq struct {
	Name      string          `json:"name"`
	OpenTime  model.TimeOfDay `json:"open_time"`  // "HH:MM"
	CloseTime model.TimeOfDay `json:"close_time"` // "HH:MM", "24:00" for midnight
	Rows      int             `json:"rows"`
	Cols      int             `json:"cols"`
}

// ListRooms returns every room as {"items": [...]}.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	rooms, err := h.Rooms.ListRooms(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

// GetRoom returns a room with its seat grid.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	detail, err := h.Rooms.GetRoom(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if detail.Seats == nil {
		detail.Seats = []model.Seat{}
	}
	return c.JSON(http.StatusOK, detail)
}

// SeatAvailability returns the free intervals of a seat between the
// RFC 3339 query parameters from and to.
func (h *RoomHandler) SeatAvailability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid seat id")
	}
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "from must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "to must be an RFC 3339 timestamp")
	}
	free, err := h.Bookings.ComputeAvailability(c.Request().Context(), id, from, to)
	if err != nil {
		return writeError(c, err)
	}
	if free == nil {
		free = []interval.Interval{}
	}
	return c.JSON(http.StatusOK, echo.Map{"seat_id": id, "from": from.UTC(), "to": to.UTC(), "free": free})
}

// CreateRoom creates a room and its seat grid (administrators only).
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	adminID, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req createRoomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	detail, err := h.Rooms.CreateRoom(c.Request().Context(), adminID, model.Room{
		Name:      req.Name,
		OpenTime:  req.OpenTime,
		CloseTime: req.CloseTime,
		Rows:      req.Rows,
		Cols:      req.Cols,
	})
	if err != nil {
		return writeError(c, err)
	}
	if h.OnCatalogChange != nil {
		h.OnCatalogChange(c.Request().Context())
	}
	return c.JSON(http.StatusCreated, detail)
}
