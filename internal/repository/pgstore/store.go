// Package pgstore implements the reservation store on PostgreSQL with pgx.
// An exclusion constraint on bookings rejects overlapping active
// reservations for a seat, so the seat row lock is a second line rather
// than the only one.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// Store implements service.AdminStore on PostgreSQL. The bookings_no_overlap
// exclusion constraint backs the overlap check.
type Store struct {
	pool *pgxpool.Pool
}

var _ service.AdminStore = (*Store)(nil)

// New returns a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for migrations and health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// WithTx runs fn in a transaction carried by ctx; nested calls join it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

// ----- members -----

const memberColumns = "id, name, email, password_hash, role, credit, created_at"

func scanMember(row pgx.Row) (model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Credit, &m.CreatedAt)
	if err != nil {
		return model.Member{}, mapError(err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// CreateMember inserts m and sets its id and creation time.
func (s *Store) CreateMember(ctx context.Context, m *model.Member) error {
	m.Email = normalizeEmail(m.Email)
	const query = `
INSERT INTO members (name, email, password_hash, role, credit)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	if err := s.queryRow(ctx, query, m.Name, m.Email, m.PasswordHash, m.Role, m.Credit).Scan(&m.ID, &m.CreatedAt); err != nil {
		return mapError(err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return nil
}

// GetMember returns the member with id.
func (s *Store) GetMember(ctx context.Context, id uint64) (model.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// GetMemberByName looks a member up by unique name.
func (s *Store) GetMemberByName(ctx context.Context, name string) (model.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE name = $1`, name))
}

// GetMemberByEmail looks a member up by unique email.
func (s *Store) GetMemberByEmail(ctx context.Context, email string) (model.Member, error) {
	return scanMember(s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, normalizeEmail(email)))
}

// AddCredit adjusts a member's credit by delta, clamped to [0, 100].
func (s *Store) AddCredit(ctx context.Context, memberID uint64, delta int) error {
	tag, err := s.exec(ctx,
		`UPDATE members SET credit = LEAST(GREATEST(credit + $1, 0), 100) WHERE id = $2`,
		delta, memberID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

// ----- rooms and seats -----

const roomColumns = "id, name, open_minute, close_minute, seat_rows, seat_cols, created_at"

func scanRoom(row pgx.Row) (model.Room, error) {
	var (
		r                 model.Room
		openMin, closeMin int16
	)
	if err := row.Scan(&r.ID, &r.Name, &openMin, &closeMin, &r.Rows, &r.Cols, &r.CreatedAt); err != nil {
		return model.Room{}, err
	}
	r.OpenTime, r.CloseTime = model.TimeOfDay(openMin), model.TimeOfDay(closeMin)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// CreateRoom inserts room and sets its id.
func (s *Store) CreateRoom(ctx context.Context, room *model.Room) error {
	const query = `
INSERT INTO rooms (name, open_minute, close_minute, seat_rows, seat_cols)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + roomColumns
	got, err := scanRoom(s.queryRow(ctx, query, room.Name, int16(room.OpenTime), int16(room.CloseTime), room.Rows, room.Cols))
	if err != nil {
		return mapError(err)
	}
	*room = got
	return nil
}

// GetRoom returns the room with id.
func (s *Store) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	r, err := scanRoom(s.queryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	return r, mapError(err)
}

// ListRooms returns every room ordered by name.
func (s *Store) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := s.query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Room, error) {
		return scanRoom(row)
	})
}

// CreateSeats inserts the whole grid in one statement and returns the
// seats with IDs in input order.
func (s *Store) CreateSeats(ctx context.Context, roomID uint64, seats []model.Seat) ([]model.Seat, error) {
	if len(seats) == 0 {
		return nil, nil
	}
	rowsIn := make([]int32, len(seats))
	colsIn := make([]int32, len(seats))
	index := make(map[[2]int]int, len(seats))
	for i, seat := range seats {
		rowsIn[i], colsIn[i] = int32(seat.Row), int32(seat.Col)
		index[[2]int{seat.Row, seat.Col}] = i
	}

	const query = `
INSERT INTO seats (room_id, seat_row, seat_col)
SELECT $1::bigint, r, c FROM unnest($2::int[], $3::int[]) AS t(r, c)
RETURNING id, room_id, seat_row, seat_col`
	rows, err := s.query(ctx, query, roomID, rowsIn, colsIn)
	if err != nil {
		return nil, mapError(err)
	}
	inserted, err := pgx.CollectRows(rows, scanSeat)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]model.Seat, len(seats))
	for _, seat := range inserted {
		out[index[[2]int{seat.Row, seat.Col}]] = seat
	}
	return out, nil
}

func scanSeat(row pgx.CollectableRow) (model.Seat, error) {
	var seat model.Seat
	err := row.Scan(&seat.ID, &seat.RoomID, &seat.Row, &seat.Col)
	return seat, err
}

// ListSeats returns a room's seats in row-major order.
func (s *Store) ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	rows, err := s.query(ctx,
		`SELECT id, room_id, seat_row, seat_col FROM seats WHERE room_id = $1 ORDER BY seat_row, seat_col`, roomID)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, scanSeat)
}

// GetSeat returns the seat with id.
func (s *Store) GetSeat(ctx context.Context, id uint64) (model.Seat, error) {
	var seat model.Seat
	err := s.queryRow(ctx, `SELECT id, room_id, seat_row, seat_col FROM seats WHERE id = $1`, id).
		Scan(&seat.ID, &seat.RoomID, &seat.Row, &seat.Col)
	return seat, mapError(err)
}

var errLockOutsideTx = errors.New("seat lock requested outside a transaction")

// LockSeat reads the seat FOR UPDATE inside the current transaction.
func (s *Store) LockSeat(ctx context.Context, id uint64) (model.Seat, error) {
	if txFromContext(ctx) == nil {
		return model.Seat{}, errLockOutsideTx
	}
	var seat model.Seat
	err := s.queryRow(ctx, `SELECT id, room_id, seat_row, seat_col FROM seats WHERE id = $1 FOR UPDATE`, id).
		Scan(&seat.ID, &seat.RoomID, &seat.Row, &seat.Col)
	return seat, mapError(err)
}

// ----- bookings -----

const bookingColumns = `id, member_id, seat_id, create_time, start_time, end_time, check_in_time, check_out_time, state`

func scanBooking(row pgx.CollectableRow) (model.Booking, error) {
	return scanBookingRow(row)
}

func scanBookingRow(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.MemberID, &b.SeatID, &b.CreateTime, &b.StartTime, &b.EndTime,
		&b.CheckInTime, &b.CheckOutTime, &b.State)
	if err != nil {
		return model.Booking{}, err
	}
	b.CreateTime, b.StartTime, b.EndTime = b.CreateTime.UTC(), b.StartTime.UTC(), b.EndTime.UTC()
	if b.CheckInTime != nil {
		t := b.CheckInTime.UTC()
		b.CheckInTime = &t
	}
	if b.CheckOutTime != nil {
		t := b.CheckOutTime.UTC()
		b.CheckOutTime = &t
	}
	return b, nil
}

func (s *Store) listBookings(ctx context.Context, sql string, args ...any) ([]model.Booking, error) {
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	out, err := pgx.CollectRows(rows, scanBooking)
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	return out, nil
}

// ListActiveBookings returns BOOKED and CHECKED_IN bookings on the seat
// that overlap window.
func (s *Store) ListActiveBookings(ctx context.Context, seatID uint64, window interval.Interval) ([]model.Booking, error) {
	return s.listBookings(ctx, `
SELECT `+bookingColumns+`
FROM bookings
WHERE seat_id = $1 AND state IN ($2, $3) AND start_time < $4 AND end_time > $5
ORDER BY start_time, id`,
		seatID, model.StateBooked, model.StateCheckedIn, window.End, window.Start)
}

// InsertBooking relies on bookings_no_overlap; a conflicting active
// booking surfaces as service.ErrOverlap.
func (s *Store) InsertBooking(ctx context.Context, b *model.Booking) error {
	const query = `
INSERT INTO bookings (member_id, seat_id, create_time, start_time, end_time, state)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := s.queryRow(ctx, query, b.MemberID, b.SeatID, b.CreateTime, b.StartTime, b.EndTime, b.State).Scan(&b.ID)
	return mapError(err)
}

// GetBooking returns the booking with id.
func (s *Store) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBookingRow(s.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, mapError(err)
}

// TransitionBooking applies t only if the booking is still in t.From.
func (s *Store) TransitionBooking(ctx context.Context, t service.Transition) (bool, error) {
	const query = `
UPDATE bookings
SET state = $1,
    check_in_time = COALESCE($2, check_in_time),
    check_out_time = COALESCE($3, check_out_time)
WHERE id = $4 AND state = $5`
	tag, err := s.exec(ctx, query, t.To, utcPtr(t.CheckInTime), utcPtr(t.CheckOutTime), t.BookingID, t.From)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListMissedCheckIns returns BOOKED bookings that started before before.
func (s *Store) ListMissedCheckIns(ctx context.Context, before time.Time) ([]model.Booking, error) {
	return s.listBookings(ctx, `
SELECT `+bookingColumns+` FROM bookings
WHERE state = $1 AND start_time < $2
ORDER BY start_time, id`, model.StateBooked, before)
}

// ListMissedCheckOuts returns CHECKED_IN bookings that ended before before.
func (s *Store) ListMissedCheckOuts(ctx context.Context, before time.Time) ([]model.Booking, error) {
	return s.listBookings(ctx, `
SELECT `+bookingColumns+` FROM bookings
WHERE state = $1 AND end_time < $2
ORDER BY end_time, id`, model.StateCheckedIn, before)
}

// ListBookingsByMember returns a member's bookings, newest first.
func (s *Store) ListBookingsByMember(ctx context.Context, memberID uint64) ([]model.Booking, error) {
	return s.listBookings(ctx, `
SELECT `+bookingColumns+` FROM bookings
WHERE member_id = $1
ORDER BY start_time DESC, id DESC`, memberID)
}

// ----- violations -----

// InsertViolation records v and sets its id.
func (s *Store) InsertViolation(ctx context.Context, v *model.Violation) error {
	const query = `
INSERT INTO violations (member_id, booking_id, create_time, type, content)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	return mapError(s.queryRow(ctx, query, v.MemberID, v.BookingID, v.CreateTime, v.Type, v.Content).Scan(&v.ID))
}

// ListViolationsByMember returns a member's violations, newest first.
func (s *Store) ListViolationsByMember(ctx context.Context, memberID uint64) ([]model.Violation, error) {
	rows, err := s.query(ctx, `
SELECT id, member_id, booking_id, create_time, type, content
FROM violations WHERE member_id = $1
ORDER BY create_time DESC, id DESC`, memberID)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Violation, error) {
		var v model.Violation
		if err := row.Scan(&v.ID, &v.MemberID, &v.BookingID, &v.CreateTime, &v.Type, &v.Content); err != nil {
			return model.Violation{}, err
		}
		v.CreateTime = v.CreateTime.UTC()
		return v, nil
	})
}

// ----- refresh tokens -----

// StoreRefresh persists a hashed refresh token.
func (s *Store) StoreRefresh(ctx context.Context, memberID uint64, tokenHash string, exp time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO refresh_tokens (member_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		memberID, tokenHash, exp)
	return mapError(err)
}

// ValidateRefresh returns the owner of an unrevoked, unexpired token.
func (s *Store) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var memberID uint64
	err := s.queryRow(ctx, `
SELECT member_id FROM refresh_tokens
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()`, tokenHash).Scan(&memberID)
	return memberID, mapError(err)
}

// RevokeByHash revokes a single refresh token.
func (s *Store) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := s.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return mapError(err)
}

// RevokeAllForMember revokes every refresh token of a member.
func (s *Store) RevokeAllForMember(ctx context.Context, memberID uint64) error {
	_, err := s.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE member_id = $1 AND revoked_at IS NULL`, memberID)
	return mapError(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
