package model

// Seat is a single position in a room's grid.  Row and Col are
// zero-based and unique per room; the seat refers to its room by id.
type Seat struct {
	ID     uint64 `json:"id"`      // seats.id
	RoomID uint64 `json:"room_id"` // seats.room_id
	Row    int    `json:"row"`     // seats.seat_row
	Col    int    `json:"col"`     // seats.seat_col
}

// SeatGrid returns the rows×cols seats for a room, row-major.
func SeatGrid(roomID uint64, rows, cols int) []Seat {
	seats := make([]Seat, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			seats = append(seats, Seat{RoomID: roomID, Row: r, Col: c})
		}
	}
	return seats
}
