package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/policy"
)

const publishTimeout = 3 * time.Second

// BookingService runs the booking lifecycle: availability, create,
// cancel, check-in and check-out. It is the only writer of booking
// state besides the Sweeper.
type BookingService struct {
	store Store
	clock clock.Clock
	loc   *time.Location
	pub   Publisher
	log   *slog.Logger
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithLocation sets the location room opening hours are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(s *BookingService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPublisher sets the lifecycle event sink.
func WithPublisher(p Publisher) Option {
	return func(s *BookingService) {
		if p != nil {
			s.pub = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *BookingService) {
		if l != nil {
			s.log = l
		}
	}
}

// NewBookingService returns a BookingService over store. A nil clock means
// the system clock; the location defaults to UTC.
func NewBookingService(store Store, clk clock.Clock, opts ...Option) *BookingService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	s := &BookingService{
		store: store,
		clock: clk,
		loc:   time.UTC,
		pub:   nopPublisher{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeAvailability returns the free intervals of a seat within
// [from, to), limited to the room's opening hours.
func (s *BookingService) ComputeAvailability(ctx context.Context, seatID uint64, from, to time.Time) ([]interval.Interval, error) {
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, invalidRequest("window start must be before window end")
	}
	seat, err := s.store.GetSeat(ctx, seatID)
	if err != nil {
		return nil, classifyStore("get seat", err, "seat not found")
	}
	room, err := s.store.GetRoom(ctx, seat.RoomID)
	if err != nil {
		return nil, classifyStore("get room", err, "room not found")
	}
	bookings, err := s.store.ListActiveBookings(ctx, seatID, interval.Interval{Start: from, End: to})
	if err != nil {
		return nil, classifyStore("list bookings", err, "seat not found")
	}
	busy := make([]interval.Interval, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, interval.Interval{Start: b.StartTime, End: b.EndTime})
	}
	slices.SortFunc(busy, func(a, b interval.Interval) int { return a.Start.Compare(b.Start) })

	free := []interval.Interval{}
	for _, w := range policy.OpeningWindows(room, from, to, s.loc) {
		free = slices.AppendSeq(free, interval.Gaps(w, busy))
	}
	return free, nil
}

// CreateBooking reserves a seat for [start, end) on behalf of memberID.
// The seat row is locked and overlaps are re-read inside the same
// transaction as the insert.
func (s *BookingService) CreateBooking(ctx context.Context, memberID, seatID uint64, start, end time.Time) (model.Booking, error) {
	start, end = start.UTC(), end.UTC()
	now := s.clock.Now()
	if !start.Before(end) {
		return model.Booking{}, invalidRequest("start must be before end")
	}
	if !start.After(now) {
		return model.Booking{}, invalidRequest("start must be in the future")
	}

	var b model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		member, err := s.store.GetMember(ctx, memberID)
		if err != nil {
			return classifyStore("get member", err, "member not found")
		}
		seat, err := s.store.LockSeat(ctx, seatID)
		if err != nil {
			return classifyStore("lock seat", err, "seat not found")
		}
		room, err := s.store.GetRoom(ctx, seat.RoomID)
		if err != nil {
			return classifyStore("get room", err, "room not found")
		}
		if !policy.WithinOpeningHours(room, start, end, s.loc) {
			return invalidRequest("booking must fit within the room's opening hours")
		}
		limit := policy.MaxDuration(member.Credit)
		if limit == 0 {
			return invalidRequest("credit too low to book")
		}
		if end.Sub(start) > limit {
			return invalidRequest("booking exceeds the maximum duration for this member")
		}

		busy, err := s.store.ListActiveBookings(ctx, seatID, interval.Interval{Start: start, End: end})
		if err != nil {
			return classifyStore("list bookings", err, "seat not found")
		}
		if len(busy) > 0 {
			return conflict("seat already booked for this interval")
		}

		b = model.Booking{
			MemberID:   memberID,
			SeatID:     seatID,
			CreateTime: now,
			StartTime:  start,
			EndTime:    end,
			State:      model.StateBooked,
		}
		return classifyStore("insert booking", s.store.InsertBooking(ctx, &b), "seat not found")
	})
	if err != nil {
		return model.Booking{}, classifyStore("create booking", err, "seat not found")
	}
	s.publish(ctx, model.EventBookingCreated, b)
	return b, nil
}

// CancelBooking cancels a BOOKED booking. Within CancelNotice of the start
// the caller must force it, which records a FORCED_CANCEL violation.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, callerID uint64, force bool) (model.Booking, error) {
	now := s.clock.Now()
	var b model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.authorize(ctx, bookingID, callerID)
		if err != nil {
			return err
		}
		if b.State != model.StateBooked {
			return invalidRequest("only booked reservations can be canceled")
		}
		late := b.StartTime.Sub(now) < policy.CancelNotice
		if late && !force {
			return invalidRequest("cancellation less than 3 hours before start must be forced")
		}
		if err := s.transition(ctx, &b, model.StateCanceled, nil, nil); err != nil {
			return err
		}
		if !late {
			return nil
		}
		_, err = s.appendViolation(ctx, b.MemberID, &b.ID, model.ViolationForcedCancel,
			"canceled less than 3 hours before start", policy.Penalty(model.ViolationForcedCancel), now)
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.publish(ctx, model.EventBookingCanceled, b)
	return b, nil
}

// CheckIn marks a BOOKED booking as occupied within CheckWindow of its start.
func (s *BookingService) CheckIn(ctx context.Context, bookingID, callerID uint64) (model.Booking, error) {
	now := s.clock.Now()
	var b model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.authorize(ctx, bookingID, callerID)
		if err != nil {
			return err
		}
		if b.State != model.StateBooked {
			return invalidRequest("only booked reservations can be checked in")
		}
		if !policy.WithinWindow(b.StartTime, now, policy.CheckWindow) {
			return invalidRequest("outside the check-in window")
		}
		return s.transition(ctx, &b, model.StateCheckedIn, &now, nil)
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.publish(ctx, model.EventBookingCheckedIn, b)
	return b, nil
}

// CheckOut closes a CHECKED_IN booking within CheckWindow of its end and
// rewards the member's credit in the same transaction.
func (s *BookingService) CheckOut(ctx context.Context, bookingID, callerID uint64) (model.Booking, error) {
	now := s.clock.Now()
	var b model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.authorize(ctx, bookingID, callerID)
		if err != nil {
			return err
		}
		if b.State != model.StateCheckedIn {
			return invalidRequest("only checked-in reservations can be checked out")
		}
		if !policy.WithinWindow(b.EndTime, now, policy.CheckWindow) {
			return invalidRequest("outside the check-out window")
		}
		if err := s.transition(ctx, &b, model.StateCheckedOut, nil, &now); err != nil {
			return err
		}
		return classifyStore("add credit", s.store.AddCredit(ctx, b.MemberID, policy.CheckOutReward), "member not found")
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.publish(ctx, model.EventBookingCheckedOut, b)
	return b, nil
}

// GetBooking returns a booking visible to its owner or an administrator.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, callerID uint64) (model.Booking, error) {
	return s.authorize(ctx, bookingID, callerID)
}

// ListMemberBookings lists a member's bookings, newest first.
func (s *BookingService) ListMemberBookings(ctx context.Context, callerID, memberID uint64) ([]model.Booking, error) {
	if err := s.authorizeMember(ctx, callerID, memberID); err != nil {
		return nil, err
	}
	out, err := s.store.ListBookingsByMember(ctx, memberID)
	if err != nil {
		return nil, classifyStore("list bookings", err, "member not found")
	}
	return out, nil
}

// ListMemberViolations lists a member's violations, newest first.
func (s *BookingService) ListMemberViolations(ctx context.Context, callerID, memberID uint64) ([]model.Violation, error) {
	if err := s.authorizeMember(ctx, callerID, memberID); err != nil {
		return nil, err
	}
	out, err := s.store.ListViolationsByMember(ctx, memberID)
	if err != nil {
		return nil, classifyStore("list violations", err, "member not found")
	}
	return out, nil
}

// RecordViolation lets an administrator append an ADMINISTRATIVE_ACTION
// violation and deduct penalty credit atomically.
func (s *BookingService) RecordViolation(ctx context.Context, adminID, memberID uint64, bookingID *uint64, content string, penalty int) (model.Violation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Violation{}, invalidRequest("content is required")
	}
	if penalty < 0 || penalty > policy.CreditCeiling {
		return model.Violation{}, invalidRequest("penalty must be between 0 and 100")
	}
	now := s.clock.Now()
	var v model.Violation
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		admin, err := s.store.GetMember(ctx, adminID)
		if err != nil {
			return classifyStore("get member", err, "member not found")
		}
		if !admin.IsAdmin() {
			return forbidden("administrator role required")
		}
		if _, err := s.store.GetMember(ctx, memberID); err != nil {
			return classifyStore("get member", err, "member not found")
		}
		if bookingID != nil {
			b, err := s.store.GetBooking(ctx, *bookingID)
			if err != nil {
				return classifyStore("get booking", err, "booking not found")
			}
			if b.MemberID != memberID {
				return invalidRequest("booking does not belong to member")
			}
		}
		v, err = s.appendViolation(ctx, memberID, bookingID, model.ViolationAdministrativeAction, content, penalty, now)
		return err
	})
	if err != nil {
		return model.Violation{}, err
	}
	return v, nil
}

// authorize loads a booking and checks the caller owns it or is an admin.
func (s *BookingService) authorize(ctx context.Context, bookingID, callerID uint64) (model.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, classifyStore("get booking", err, "booking not found")
	}
	if b.MemberID == callerID {
		return b, nil
	}
	caller, err := s.store.GetMember(ctx, callerID)
	if err != nil {
		return model.Booking{}, classifyStore("get member", err, "member not found")
	}
	if !caller.IsAdmin() {
		return model.Booking{}, forbidden("booking belongs to another member")
	}
	return b, nil
}

func (s *BookingService) authorizeMember(ctx context.Context, callerID, memberID uint64) error {
	if callerID == memberID {
		return nil
	}
	caller, err := s.store.GetMember(ctx, callerID)
	if err != nil {
		return classifyStore("get member", err, "member not found")
	}
	if !caller.IsAdmin() {
		return forbidden("not allowed to view another member")
	}
	return nil
}

// transition performs the guarded state write and updates b on success.
func (s *BookingService) transition(ctx context.Context, b *model.Booking, to model.BookingState, checkIn, checkOut *time.Time) error {
	if err := model.ValidateTransition(b.State, to); err != nil {
		return invalidRequest(err.Error())
	}
	ok, err := s.store.TransitionBooking(ctx, Transition{
		BookingID:    b.ID,
		From:         b.State,
		To:           to,
		CheckInTime:  checkIn,
		CheckOutTime: checkOut,
	})
	if err != nil {
		return classifyStore("transition booking", err, "booking not found")
	}
	if !ok {
		return conflict(errOperationFailed)
	}
	b.State = to
	if checkIn != nil {
		b.CheckInTime = checkIn
	}
	if checkOut != nil {
		b.CheckOutTime = checkOut
	}
	return nil
}

func (s *BookingService) appendViolation(ctx context.Context, memberID uint64, bookingID *uint64, vt model.ViolationType, content string, penalty int, now time.Time) (model.Violation, error) {
	v := model.Violation{
		MemberID:   memberID,
		BookingID:  bookingID,
		CreateTime: now,
		Type:       vt,
		Content:    content,
	}
	if err := s.store.InsertViolation(ctx, &v); err != nil {
		return model.Violation{}, classifyStore("insert violation", err, "member not found")
	}
	if penalty > 0 {
		if err := s.store.AddCredit(ctx, memberID, -penalty); err != nil {
			return model.Violation{}, classifyStore("deduct credit", err, "member not found")
		}
	}
	return v, nil
}

func (s *BookingService) publish(ctx context.Context, kind string, b model.Booking) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, model.NewBookingEvent(kind, b, s.clock.Now())); err != nil {
		s.log.Warn("publish booking event failed", "type", kind, "booking_id", b.ID, "err", err)
	}
}
