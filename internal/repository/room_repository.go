package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives

	"github.com/iliyamo/seat-reservation/internal/model"
)

// RoomRepo provides methods to create and retrieve rooms.  Opening hours
// are stored as minutes after midnight in open_minute/close_minute.
type RoomRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = "id, name, open_minute, close_minute, seat_rows, seat_cols, created_at"

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var r model.Room
	err := row.Scan(&r.ID, &r.Name, &r.OpenTime, &r.CloseTime, &r.Rows, &r.Cols, &r.CreatedAt)
	return r, err
}

// CreateRoom inserts a new room.  After insert the row is read back so
// created_at is populated.
func (r *RoomRepo) CreateRoom(ctx context.Context, room *model.Room) error {
	const qInsert = `INSERT INTO rooms (name, open_minute, close_minute, seat_rows, seat_cols)
	                 VALUES (?, ?, ?, ?, ?)`
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, qInsert, room.Name, int(room.OpenTime), int(room.CloseTime), room.Rows, room.Cols)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := scanRoom(q.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	if err != nil {
		return mapError(err)
	}
	*room = got
	return nil
}

// GetRoom retrieves a room by its ID.
func (r *RoomRepo) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	room, err := scanRoom(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	return room, mapError(err)
}

// ListRooms returns every room ordered by name.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, room)
	}
	return result, rows.Err()
}
