package service

import (
	"context"
	"time"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
)

// Transition is a compare-and-swap of a booking's state. The write
// applies only when the persisted state still equals From.
type Transition struct {
	BookingID    uint64
	From         model.BookingState
	To           model.BookingState
	CheckInTime  *time.Time
	CheckOutTime *time.Time
}

// Store is the persistence the engine and sweeper run on. Lookups return
// ErrNotFound for absent rows. Methods called with a context produced by
// WithTx join that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetMember(ctx context.Context, id uint64) (model.Member, error)
	GetMemberByName(ctx context.Context, name string) (model.Member, error)
	// AddCredit applies delta to a member's credit clamped to [0,100] in a
	// single guarded statement.
	AddCredit(ctx context.Context, memberID uint64, delta int) error

	GetRoom(ctx context.Context, id uint64) (model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error)
	GetSeat(ctx context.Context, id uint64) (model.Seat, error)
	// LockSeat reads a seat and holds a row lock until the transaction ends.
	LockSeat(ctx context.Context, id uint64) (model.Seat, error)

	// ListActiveBookings returns BOOKED and CHECKED_IN bookings on the seat
	// overlapping window, ordered by start time.
	ListActiveBookings(ctx context.Context, seatID uint64, window interval.Interval) ([]model.Booking, error)
	// InsertBooking sets b.ID. It returns ErrOverlap when the store itself
	// rejects an overlapping active booking.
	InsertBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	// TransitionBooking reports false when no row matched the expected state.
	TransitionBooking(ctx context.Context, t Transition) (bool, error)
	// ListMissedCheckIns returns BOOKED bookings with start_time < before.
	ListMissedCheckIns(ctx context.Context, before time.Time) ([]model.Booking, error)
	// ListMissedCheckOuts returns CHECKED_IN bookings with end_time < before.
	ListMissedCheckOuts(ctx context.Context, before time.Time) ([]model.Booking, error)
	ListBookingsByMember(ctx context.Context, memberID uint64) ([]model.Booking, error)

	InsertViolation(ctx context.Context, v *model.Violation) error
	ListViolationsByMember(ctx context.Context, memberID uint64) ([]model.Violation, error)
}

// Publisher receives lifecycle events after the change has committed.
type Publisher interface {
	Publish(ctx context.Context, ev model.BookingEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.BookingEvent) error { return nil }

// AdminStore adds the catalogue writes used by room administration.
type AdminStore interface {
	Store
	CreateRoom(ctx context.Context, room *model.Room) error
	// CreateSeats inserts seats for roomID and returns them with IDs in
	// input order.
	CreateSeats(ctx context.Context, roomID uint64, seats []model.Seat) ([]model.Seat, error)
}
