package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/seat-reservation/internal/model"
)

// RoomService administers the room catalogue and serves it to readers.
type RoomService struct {
	store AdminStore
}

// NewRoomService returns a RoomService over store.
func NewRoomService(store AdminStore) *RoomService {
	return &RoomService{store: store}
}

// RoomDetail is a room together with its seat grid.
type RoomDetail struct {
	model.Room
	Seats []model.Seat `json:"seats"`
}

// CreateRoom creates a room and its rows×cols seat grid in one
// transaction. Only administrators may call it.
func (s *RoomService) CreateRoom(ctx context.Context, adminID uint64, room model.Room) (RoomDetail, error) {
	room.Name = strings.TrimSpace(room.Name)
	if err := room.Validate(); err != nil {
		return RoomDetail{}, invalidRequest(err.Error())
	}
	var out RoomDetail
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		admin, err := s.store.GetMember(ctx, adminID)
		if err != nil {
			return classifyStore("get member", err, "member not found")
		}
		if !admin.IsAdmin() {
			return forbidden("administrator role required")
		}
		if err := s.store.CreateRoom(ctx, &room); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return conflict("room name already exists")
			}
			return classifyStore("create room", err, "room not found")
		}
		seats, err := s.store.CreateSeats(ctx, room.ID, model.SeatGrid(room.ID, room.Rows, room.Cols))
		if err != nil {
			return classifyStore("create seats", err, "room not found")
		}
		out = RoomDetail{Room: room, Seats: seats}
		return nil
	})
	if err != nil {
		return RoomDetail{}, classifyStore("create room", err, "room not found")
	}
	return out, nil
}

// ListRooms returns every room ordered by name.
func (s *RoomService) ListRooms(ctx context.Context) ([]model.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, classifyStore("list rooms", err, "room not found")
	}
	return rooms, nil
}

// GetRoom returns a room with its seats ordered by row then column.
func (s *RoomService) GetRoom(ctx context.Context, roomID uint64) (RoomDetail, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return RoomDetail{}, classifyStore("get room", err, "room not found")
	}
	seats, err := s.store.ListSeats(ctx, roomID)
	if err != nil {
		return RoomDetail{}, classifyStore("list seats", err, "room not found")
	}
	return RoomDetail{Room: room, Seats: seats}, nil
}
