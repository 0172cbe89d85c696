package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation/internal/clock"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// Monday 07:00 UTC; the test room is open 08:00-20:00 UTC.
var base = time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2025, 6, 2, h, m, 0, 0, time.UTC)
}

type fixture struct {
	store *memstore.Store
	clock *clock.Manual
	svc   *service.BookingService
	room  model.Room
	seat  model.Seat
	admin model.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	clk := clock.NewManual(base)

	room := model.Room{Name: "Quiet room", OpenTime: 8 * 60, CloseTime: 20 * 60, Rows: 1, Cols: 2}
	require.NoError(t, st.CreateRoom(ctx, &room))
	seats, err := st.CreateSeats(ctx, room.ID, model.SeatGrid(room.ID, room.Rows, room.Cols))
	require.NoError(t, err)

	admin := model.Member{Name: "admin", Email: "admin@example.com", Role: model.RoleAdmin, Credit: 100}
	require.NoError(t, st.CreateMember(ctx, &admin))

	return &fixture{
		store: st,
		clock: clk,
		svc:   service.NewBookingService(st, clk),
		room:  room,
		seat:  seats[0],
		admin: admin,
	}
}

func (f *fixture) member(t *testing.T, name string, credit int) model.Member {
	t.Helper()
	m := model.Member{Name: name, Email: name + "@example.com", Role: model.RoleMember, Credit: credit}
	require.NoError(t, f.store.CreateMember(context.Background(), &m))
	return m
}

func (f *fixture) credit(t *testing.T, memberID uint64) int {
	t.Helper()
	m, err := f.store.GetMember(context.Background(), memberID)
	require.NoError(t, err)
	return m.Credit
}

func (f *fixture) booking(t *testing.T, id uint64) model.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) violations(t *testing.T, memberID uint64) []model.Violation {
	t.Helper()
	vs, err := f.store.ListViolationsByMember(context.Background(), memberID)
	require.NoError(t, err)
	return vs
}

func requireKind(t *testing.T, err error, kind service.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, service.KindOf(err), "error: %v", err)
}

// faultyStore injects failures into selected store calls.
type faultyStore struct {
	*memstore.Store

	mu                sync.Mutex
	failViolationFor  map[uint64]bool
	transitionErr     error
	transitionNoMatch bool
}

func (f *faultyStore) InsertViolation(ctx context.Context, v *model.Violation) error {
	f.mu.Lock()
	fail := v.BookingID != nil && f.failViolationFor[*v.BookingID]
	f.mu.Unlock()
	if fail {
		return errors.New("violations table unavailable")
	}
	return f.Store.InsertViolation(ctx, v)
}

func (f *faultyStore) TransitionBooking(ctx context.Context, tr service.Transition) (bool, error) {
	f.mu.Lock()
	terr, noMatch := f.transitionErr, f.transitionNoMatch
	f.mu.Unlock()
	if terr != nil {
		return false, terr
	}
	if noMatch {
		return false, nil
	}
	return f.Store.TransitionBooking(ctx, tr)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
