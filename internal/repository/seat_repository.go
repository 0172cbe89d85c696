package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors for sentinel definitions
	"strings"

	"github.com/iliyamo/seat-reservation/internal/model"
)

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// seatInsertBatch bounds the number of placeholders per INSERT.
const seatInsertBatch = 1000

// CreateSeats inserts seats for roomID in multi-row statements and
// returns them with IDs, in input order.  A taken position surfaces as
// a duplicate-key error.
func (r *SeatRepo) CreateSeats(ctx context.Context, roomID uint64, seats []model.Seat) ([]model.Seat, error) {
	if len(seats) == 0 {
		return nil, nil
	}
	q := conn(ctx, r.db)
	out := make([]model.Seat, 0, len(seats))
	for start := 0; start < len(seats); start += seatInsertBatch {
		batch := seats[start:min(start+seatInsertBatch, len(seats))]
		var sb strings.Builder
		sb.WriteString("INSERT INTO seats (room_id, seat_row, seat_col) VALUES ")
		args := make([]any, 0, len(batch)*3)
		for i, s := range batch {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, roomID, s.Row, s.Col)
		}
		res, err := q.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, mapError(err)
		}
		// InnoDB hands out consecutive ids for a single multi-row insert
		// under the default lock mode.
		first, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		for i, s := range batch {
			out = append(out, model.Seat{ID: uint64(first) + uint64(i), RoomID: roomID, Row: s.Row, Col: s.Col})
		}
	}
	return out, nil
}

// ListSeats retrieves all seats of a room ordered by row then column.
func (r *SeatRepo) ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	const q = `SELECT id, room_id, seat_row, seat_col
	           FROM seats
	           WHERE room_id = ?
	           ORDER BY seat_row, seat_col`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Row, &s.Col); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSeat retrieves a seat by its id.
func (r *SeatRepo) GetSeat(ctx context.Context, id uint64) (model.Seat, error) {
	return r.getSeat(ctx, "SELECT id, room_id, seat_row, seat_col FROM seats WHERE id = ?", id)
}

// LockSeat reads a seat with FOR UPDATE, serializing bookings on it until
// the surrounding transaction ends.
func (r *SeatRepo) LockSeat(ctx context.Context, id uint64) (model.Seat, error) {
	if txFromContext(ctx) == nil {
		return model.Seat{}, errLockOutsideTx
	}
	return r.getSeat(ctx, "SELECT id, room_id, seat_row, seat_col FROM seats WHERE id = ? FOR UPDATE", id)
}

func (r *SeatRepo) getSeat(ctx context.Context, q string, id uint64) (model.Seat, error) {
	var s model.Seat
	err := conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(&s.ID, &s.RoomID, &s.Row, &s.Col)
	if err != nil {
		return model.Seat{}, mapError(err)
	}
	return s, nil
}

var errLockOutsideTx = errors.New("seat lock requested outside a transaction")
