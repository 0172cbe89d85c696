package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// BookingRepo provides access to the bookings table.  All timestamp
// columns are DATETIME(6) stored in UTC (the DSN sets loc=UTC).
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, member_id, seat_id, create_time, start_time, end_time,
	check_in_time, check_out_time, state`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b        model.Booking
		checkIn  sql.NullTime
		checkOut sql.NullTime
	)
	err := row.Scan(&b.ID, &b.MemberID, &b.SeatID, &b.CreateTime, &b.StartTime, &b.EndTime,
		&checkIn, &checkOut, &b.State)
	if err != nil {
		return model.Booking{}, err
	}
	if checkIn.Valid {
		t := checkIn.Time.UTC()
		b.CheckInTime = &t
	}
	if checkOut.Valid {
		t := checkOut.Time.UTC()
		b.CheckOutTime = &t
	}
	return b, nil
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListActiveBookings returns BOOKED/CHECKED_IN bookings on the seat that
// overlap window, ordered by start time.
func (r *BookingRepo) ListActiveBookings(ctx context.Context, seatID uint64, window interval.Interval) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE seat_id = ? AND state IN (?, ?) AND start_time < ? AND end_time > ?
		ORDER BY start_time, id`,
		seatID, model.StateBooked, model.StateCheckedIn, window.End, window.Start)
}

// InsertBooking inserts b and sets its ID.  MySQL has no exclusion
// constraint; callers hold the seat row lock while checking overlaps.
func (r *BookingRepo) InsertBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (member_id, seat_id, create_time, start_time, end_time, state)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, b.MemberID, b.SeatID, b.CreateTime, b.StartTime, b.EndTime, b.State)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetBooking fetches one booking by id.
func (r *BookingRepo) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	return b, mapError(err)
}

// TransitionBooking moves a booking from t.From to t.To only if it is
// still in t.From.  It reports false when no row matched.
func (r *BookingRepo) TransitionBooking(ctx context.Context, t service.Transition) (bool, error) {
	const q = `UPDATE bookings
	           SET state = ?,
	               check_in_time = COALESCE(?, check_in_time),
	               check_out_time = COALESCE(?, check_out_time)
	           WHERE id = ? AND state = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, t.To, nullTime(t.CheckInTime), nullTime(t.CheckOutTime), t.BookingID, t.From)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListMissedCheckIns returns BOOKED bookings that started before the cutoff.
func (r *BookingRepo) ListMissedCheckIns(ctx context.Context, before time.Time) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE state = ? AND start_time < ? ORDER BY start_time, id`,
		model.StateBooked, before)
}

// ListMissedCheckOuts returns CHECKED_IN bookings that ended before the cutoff.
func (r *BookingRepo) ListMissedCheckOuts(ctx context.Context, before time.Time) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE state = ? AND end_time < ? ORDER BY end_time, id`,
		model.StateCheckedIn, before)
}

// ListBookingsByMember lists a member's bookings, newest start first.
func (r *BookingRepo) ListBookingsByMember(ctx context.Context, memberID uint64) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE member_id = ? ORDER BY start_time DESC, id DESC`, memberID)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
