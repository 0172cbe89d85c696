package model

import (
	"errors"
	"time"
)

// BookingState is the persisted lifecycle code of a booking.
type BookingState string

const (
	StateBooked     BookingState = "BOOKED"
	StateCheckedIn  BookingState = "CHECKED_IN"
	StateCheckedOut BookingState = "CHECKED_OUT"
	StateCanceled   BookingState = "CANCELED"
)

// ErrInvalidTransition is returned by ValidateTransition for moves the
// booking lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid booking state transition")

var transitions = map[BookingState]map[BookingState]bool{
	StateBooked: {
		StateCheckedIn: true,
		StateCanceled:  true,
	},
	StateCheckedIn: {
		StateCheckedOut: true,
		StateCanceled:   true, // missed check-out
	},
}

// CanTransition reports whether a booking may move from one state to another.
func CanTransition(from, to BookingState) bool {
	return transitions[from][to]
}

// ValidateTransition returns ErrInvalidTransition when CanTransition is false.
func ValidateTransition(from, to BookingState) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s BookingState) bool {
	return s == StateCheckedOut || s == StateCanceled
}

// IsActive reports whether a booking in state s occupies its seat.
func IsActive(s BookingState) bool {
	return s == StateBooked || s == StateCheckedIn
}

// Valid reports whether s is one of the known state codes.
func (s BookingState) Valid() bool {
	switch s {
	case StateBooked, StateCheckedIn, StateCheckedOut, StateCanceled:
		return true
	}
	return false
}

// ActiveStates lists the states that block a seat interval.
var ActiveStates = []BookingState{StateBooked, StateCheckedIn}

// Booking reserves one seat for [StartTime, EndTime).  All timestamps
// are UTC.
type Booking struct {
	ID           uint64       `json:"id"`                       // bookings.id
	MemberID     uint64       `json:"member_id"`                // bookings.member_id
	SeatID       uint64       `json:"seat_id"`                  // bookings.seat_id
	CreateTime   time.Time    `json:"create_time"`              // bookings.create_time
	StartTime    time.Time    `json:"start_time"`               // bookings.start_time
	EndTime      time.Time    `json:"end_time"`                 // bookings.end_time
	CheckInTime  *time.Time   `json:"check_in_time,omitempty"`  // bookings.check_in_time (nullable)
	CheckOutTime *time.Time   `json:"check_out_time,omitempty"` // bookings.check_out_time (nullable)
	State        BookingState `json:"state"`                    // bookings.state
}

// Event types published on booking lifecycle changes.
const (
	EventBookingCreated    = "booking.created"
	EventBookingCanceled   = "booking.canceled"
	EventBookingCheckedIn  = "booking.checked_in"
	EventBookingCheckedOut = "booking.checked_out"
	EventBookingTimedOut   = "booking.timed_out"
)

// BookingEvent is the payload emitted after a lifecycle change commits.
type BookingEvent struct {
	Type       string       `json:"type"`
	BookingID  uint64       `json:"booking_id"`
	MemberID   uint64       `json:"member_id"`
	SeatID     uint64       `json:"seat_id"`
	State      BookingState `json:"state"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    time.Time    `json:"end_time"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewBookingEvent builds an event snapshot of b.
func NewBookingEvent(kind string, b Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:       kind,
		BookingID:  b.ID,
		MemberID:   b.MemberID,
		SeatID:     b.SeatID,
		State:      b.State,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		OccurredAt: at,
	}
}
