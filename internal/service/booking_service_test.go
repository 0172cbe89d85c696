package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/seat-reservation/internal/service"
)

func TestCreateBookingCreditBands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("credit below 40 cannot book", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "low", 35)
		_, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
		requireKind(t, err, service.KindInvalidRequest)
	})

	t.Run("credit 50 is limited to two hours", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "mid", 50)
		_, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(13, 0))
		requireKind(t, err, service.KindInvalidRequest)

		b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
		require.NoError(t, err)
		assert.Equal(t, model.StateBooked, b.State)
		assert.Equal(t, base, b.CreateTime)
	})

	t.Run("full credit may book the whole day", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "high", 100)
		_, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(8, 0), at(20, 0))
		require.NoError(t, err)
	})
}

func TestCreateBookingGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "guarded", 100)

	cases := []struct {
		name       string
		seatID     uint64
		start, end time.Time
		kind       service.Kind
	}{
		{"unknown seat", 9999, at(10, 0), at(11, 0), service.KindNotFound},
		{"end before start", f.seat.ID, at(11, 0), at(10, 0), service.KindInvalidRequest},
		{"zero length", f.seat.ID, at(10, 0), at(10, 0), service.KindInvalidRequest},
		{"start in the past", f.seat.ID, at(6, 0), at(9, 0), service.KindInvalidRequest},
		{"start equals now", f.seat.ID, base, at(9, 0), service.KindInvalidRequest},
		{"before opening", f.seat.ID, at(7, 30), at(9, 0), service.KindInvalidRequest},
		{"after closing", f.seat.ID, at(19, 0), at(21, 0), service.KindInvalidRequest},
		{"spans midnight", f.seat.ID, at(19, 0), at(19, 0).Add(6 * time.Hour), service.KindInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, m.ID, tc.seatID, tc.start, tc.end)
			requireKind(t, err, tc.kind)
		})
	}

	_, err := f.svc.CreateBooking(ctx, 4242, f.seat.ID, at(10, 0), at(11, 0))
	requireKind(t, err, service.KindNotFound)
}

func TestCreateBookingOverlap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	a := f.member(t, "alice", 100)
	b := f.member(t, "bob", 100)

	_, err := f.svc.CreateBooking(ctx, a.ID, f.seat.ID, at(10, 0), at(12, 0))
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, b.ID, f.seat.ID, at(11, 0), at(13, 0))
	requireKind(t, err, service.KindConflict)

	_, err = f.svc.CreateBooking(ctx, b.ID, f.seat.ID, at(12, 0), at(13, 0))
	require.NoError(t, err, "touching intervals do not overlap")

	seats, err := f.store.ListSeats(ctx, f.room.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, b.ID, seats[1].ID, at(10, 0), at(12, 0))
	require.NoError(t, err, "another seat is independent")
}

func TestCanceledBookingFreesSeat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "carol", 100)

	b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, b.ID, m.ID, false)
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)
}

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	a := f.member(t, "racer-a", 100)
	b := f.member(t, "racer-b", 100)

	for round := 0; round < 20; round++ {
		start := at(8, 0).Add(time.Duration(round) * 30 * time.Minute)
		end := start.Add(30 * time.Minute)

		var (
			wg    sync.WaitGroup
			ready = make(chan struct{})
			errs  = make([]error, 2)
		)
		for i, id := range []uint64{a.ID, b.ID} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ready
				_, errs[i] = f.svc.CreateBooking(ctx, id, f.seat.ID, start, end)
			}()
		}
		close(ready)
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case service.IsKind(err, service.KindConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, ok, "round %d", round)
		require.Equal(t, 1, conflicts, "round %d", round)
	}
}

func TestCancelBooking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("with notice needs no force", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "early", 100)
		b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(12, 0), at(13, 0))
		require.NoError(t, err)

		got, err := f.svc.CancelBooking(ctx, b.ID, m.ID, false)
		require.NoError(t, err)
		assert.Equal(t, model.StateCanceled, got.State)
		assert.Empty(t, f.violations(t, m.ID))
		assert.Equal(t, 100, f.credit(t, m.ID))
	})

	t.Run("late cancel must be forced and is recorded", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "late", 100)
		b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(9, 0), at(10, 0))
		require.NoError(t, err)

		_, err = f.svc.CancelBooking(ctx, b.ID, m.ID, false)
		requireKind(t, err, service.KindInvalidRequest)
		assert.Equal(t, model.StateBooked, f.booking(t, b.ID).State)

		got, err := f.svc.CancelBooking(ctx, b.ID, m.ID, true)
		require.NoError(t, err)
		assert.Equal(t, model.StateCanceled, got.State)

		vs := f.violations(t, m.ID)
		require.Len(t, vs, 1)
		assert.Equal(t, model.ViolationForcedCancel, vs[0].Type)
		require.NotNil(t, vs[0].BookingID)
		assert.Equal(t, b.ID, *vs[0].BookingID)
		assert.Equal(t, 95, f.credit(t, m.ID))
	})

	t.Run("only owner or admin", func(t *testing.T) {
		f := newFixture(t)
		owner := f.member(t, "owner", 100)
		other := f.member(t, "other", 100)
		b, err := f.svc.CreateBooking(ctx, owner.ID, f.seat.ID, at(14, 0), at(15, 0))
		require.NoError(t, err)

		_, err = f.svc.CancelBooking(ctx, b.ID, other.ID, false)
		requireKind(t, err, service.KindForbidden)

		_, err = f.svc.CancelBooking(ctx, b.ID, f.admin.ID, false)
		require.NoError(t, err)
	})

	t.Run("missing booking", func(t *testing.T) {
		f := newFixture(t)
		m := f.member(t, "ghost", 100)
		_, err := f.svc.CancelBooking(ctx, 777, m.ID, false)
		requireKind(t, err, service.KindNotFound)
	})
}

func TestCheckInOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "dave", 80)

	b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)

	f.clock.Set(at(9, 40))
	_, err = f.svc.CheckIn(ctx, b.ID, m.ID)
	requireKind(t, err, service.KindInvalidRequest)

	_, err = f.svc.CheckOut(ctx, b.ID, m.ID)
	requireKind(t, err, service.KindInvalidRequest)

	f.clock.Set(at(9, 50))
	got, err := f.svc.CheckIn(ctx, b.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckedIn, got.State)
	require.NotNil(t, got.CheckInTime)
	assert.Equal(t, at(9, 50), *got.CheckInTime)

	_, err = f.svc.CheckIn(ctx, b.ID, m.ID)
	requireKind(t, err, service.KindInvalidRequest)

	f.clock.Set(at(10, 30))
	_, err = f.svc.CheckOut(ctx, b.ID, m.ID)
	requireKind(t, err, service.KindInvalidRequest)

	f.clock.Set(at(11, 10))
	got, err = f.svc.CheckOut(ctx, b.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckedOut, got.State)
	require.NotNil(t, got.CheckOutTime)
	assert.Equal(t, 85, f.credit(t, m.ID))

	_, err = f.svc.CheckOut(ctx, b.ID, m.ID)
	requireKind(t, err, service.KindInvalidRequest)
	assert.Equal(t, 85, f.credit(t, m.ID))
}

func TestCheckOutRewardIsCapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "erin", 98)

	for i := 0; i < 3; i++ {
		start := at(8+2*i, 0).Add(24 * time.Hour * time.Duration(i))
		f.clock.Set(start.Add(-time.Hour))
		b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, start, start.Add(time.Hour))
		require.NoError(t, err)

		f.clock.Set(start)
		_, err = f.svc.CheckIn(ctx, b.ID, m.ID)
		require.NoError(t, err)
		f.clock.Set(start.Add(time.Hour))
		_, err = f.svc.CheckOut(ctx, b.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, f.credit(t, m.ID))
	}
}

func TestTerminalStatesRejectEveryOperation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "frank", 100)

	canceled, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, canceled.ID, m.ID, false)
	require.NoError(t, err)

	done, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	f.clock.Set(at(10, 0))
	_, err = f.svc.CheckIn(ctx, done.ID, m.ID)
	require.NoError(t, err)
	f.clock.Set(at(11, 0))
	_, err = f.svc.CheckOut(ctx, done.ID, m.ID)
	require.NoError(t, err)

	f.clock.Set(at(14, 0))
	for _, id := range []uint64{canceled.ID, done.ID} {
		_, err = f.svc.CancelBooking(ctx, id, m.ID, true)
		requireKind(t, err, service.KindInvalidRequest)
		_, err = f.svc.CheckIn(ctx, id, m.ID)
		requireKind(t, err, service.KindInvalidRequest)
		_, err = f.svc.CheckOut(ctx, id, m.ID)
		requireKind(t, err, service.KindInvalidRequest)
	}
}

func TestZeroRowTransitionIsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "gina", 100)
	b, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)

	st := &faultyStore{Store: f.store, transitionNoMatch: true}
	svc := service.NewBookingService(st, f.clock)

	_, err = svc.CancelBooking(ctx, b.ID, m.ID, false)
	requireKind(t, err, service.KindConflict)
	var se *service.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "operation failed", se.Message)
	assert.Equal(t, model.StateBooked, f.booking(t, b.ID).State)
}

func TestComputeAvailability(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "hank", 100)

	for _, r := range [][2]int{{10, 12}, {14, 16}, {18, 20}} {
		_, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(r[0], 0), at(r[1], 0))
		require.NoError(t, err)
	}
	canceled, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(8, 0), at(9, 0))
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, canceled.ID, m.ID, true)
	require.NoError(t, err)

	got, err := f.svc.ComputeAvailability(ctx, f.seat.ID, at(0, 0), at(23, 0))
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{
		{Start: at(8, 0), End: at(10, 0)},
		{Start: at(12, 0), End: at(14, 0)},
		{Start: at(16, 0), End: at(18, 0)},
	}, got)

	got, err = f.svc.ComputeAvailability(ctx, f.seat.ID, at(21, 0), at(22, 0))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.ComputeAvailability(ctx, 31337, at(8, 0), at(9, 0))
	requireKind(t, err, service.KindNotFound)
	_, err = f.svc.ComputeAvailability(ctx, f.seat.ID, at(9, 0), at(8, 0))
	requireKind(t, err, service.KindInvalidRequest)
}

func TestAvailabilityIsBookableUpToMidnightClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "owl", 100)

	late := model.Room{Name: "Night room", OpenTime: 20 * 60, CloseTime: model.EndOfDay, Rows: 1, Cols: 1}
	require.NoError(t, f.store.CreateRoom(ctx, &late))
	seats, err := f.store.CreateSeats(ctx, late.ID, model.SeatGrid(late.ID, 1, 1))
	require.NoError(t, err)
	midnight := at(0, 0).AddDate(0, 0, 1)

	got, err := f.svc.ComputeAvailability(ctx, seats[0].ID, at(0, 0), midnight)
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: at(20, 0), End: midnight}}, got)

	_, err = f.svc.CreateBooking(ctx, m.ID, seats[0].ID, at(22, 0), midnight)
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, m.ID, seats[0].ID, at(21, 0), midnight.Add(time.Hour))
	requireKind(t, err, service.KindInvalidRequest)
}

func TestOpeningHoursOnDSTDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	local := func(h, mi int) time.Time { return time.Date(2026, 3, 29, h, mi, 0, 0, berlin) }

	st := memstore.New()
	room := model.Room{Name: "Quiet room", OpenTime: 8 * 60, CloseTime: 20 * 60, Rows: 1, Cols: 1}
	require.NoError(t, st.CreateRoom(ctx, &room))
	seats, err := st.CreateSeats(ctx, room.ID, model.SeatGrid(room.ID, 1, 1))
	require.NoError(t, err)
	m := model.Member{Name: "dora", Email: "dora@example.com", Role: model.RoleMember, Credit: 100}
	require.NoError(t, st.CreateMember(ctx, &m))

	svc := service.NewBookingService(st, clock.NewManual(local(4, 0)), service.WithLocation(berlin))

	got, err := svc.ComputeAvailability(ctx, seats[0].ID, local(0, 0), local(23, 0))
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: local(8, 0).UTC(), End: local(20, 0).UTC()}}, got)

	_, err = svc.CreateBooking(ctx, m.ID, seats[0].ID, local(8, 0), local(9, 0))
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, m.ID, seats[0].ID, local(19, 30), local(20, 30))
	requireKind(t, err, service.KindInvalidRequest)
}

func TestRecordViolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "ivan", 60)

	_, err := f.svc.RecordViolation(ctx, m.ID, m.ID, nil, "self-service", 10)
	requireKind(t, err, service.KindForbidden)

	_, err = f.svc.RecordViolation(ctx, f.admin.ID, m.ID, nil, "  ", 10)
	requireKind(t, err, service.KindInvalidRequest)

	v, err := f.svc.RecordViolation(ctx, f.admin.ID, m.ID, nil, "left belongings on the desk", 45)
	require.NoError(t, err)
	assert.Equal(t, model.ViolationAdministrativeAction, v.Type)
	assert.Equal(t, 15, f.credit(t, m.ID))

	_, err = f.svc.RecordViolation(ctx, f.admin.ID, m.ID, nil, "again", 45)
	require.NoError(t, err)
	assert.Equal(t, 0, f.credit(t, m.ID), "credit saturates at the floor")

	_, err = f.svc.RecordViolation(ctx, f.admin.ID, 9090, nil, "nobody", 1)
	requireKind(t, err, service.KindNotFound)

	vs, err := f.svc.ListMemberViolations(ctx, m.ID, m.ID)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "again", vs[0].Content)
}

func TestListMemberBookingsVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "judy", 100)
	other := f.member(t, "kim", 100)

	_, err := f.svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)

	got, err := f.svc.ListMemberBookings(ctx, m.ID, m.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.ListMemberBookings(ctx, other.ID, m.ID)
	requireKind(t, err, service.KindForbidden)

	got, err = f.svc.ListMemberBookings(ctx, f.admin.ID, m.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.GetBooking(ctx, got[0].ID, other.ID)
	requireKind(t, err, service.KindForbidden)
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := service.NewBookingService(f.store, f.clock, service.WithPublisher(pub))
	m := f.member(t, "leo", 100)

	b, err := svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 0), at(11, 0))
	require.NoError(t, err, "publish failures never fail the request")
	_, err = svc.CreateBooking(ctx, m.ID, f.seat.ID, at(10, 30), at(11, 0))
	requireKind(t, err, service.KindConflict)

	f.clock.Set(at(10, 0))
	_, err = svc.CheckIn(ctx, b.ID, m.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{model.EventBookingCreated, model.EventBookingCheckedIn}, pub.types())
}
