// Package memstore is an in-process Store guarded by one mutex. A
// transaction holds the mutex for its whole callback and restores a
// snapshot when the callback fails.
package memstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/policy"
	"github.com/iliyamo/seat-reservation/internal/service"
)

type refreshRow struct {
	memberID  uint64
	expiresAt time.Time
	revoked   bool
}

type state struct {
	nextID     uint64
	members    map[uint64]model.Member
	rooms      map[uint64]model.Room
	seats      map[uint64]model.Seat
	bookings   map[uint64]model.Booking
	violations []model.Violation
	tokens     map[string]refreshRow
}

func (st *state) clone() *state {
	return &state{
		nextID:     st.nextID,
		members:    maps.Clone(st.members),
		rooms:      maps.Clone(st.rooms),
		seats:      maps.Clone(st.seats),
		bookings:   maps.Clone(st.bookings),
		violations: slices.Clone(st.violations),
		tokens:     maps.Clone(st.tokens),
	}
}

func (st *state) id() uint64 {
	st.nextID++
	return st.nextID
}

// Store implements service.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

var _ service.AdminStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{data: &state{
		members:  map[uint64]model.Member{},
		rooms:    map[uint64]model.Room{},
		seats:    map[uint64]model.Seat{},
		bookings: map[uint64]model.Booking{},
		tokens:   map[string]refreshRow{},
	}}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the mutex unless ctx already runs inside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx runs fn holding the store lock; nested calls reuse it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// ----- members -----

func (s *Store) CreateMember(ctx context.Context, m *model.Member) error {
	defer s.lock(ctx)()
	email := strings.ToLower(strings.TrimSpace(m.Email))
	for _, existing := range s.data.members {
		if existing.Email == email || existing.Name == m.Name {
			return service.ErrDuplicate
		}
	}
	m.ID = s.data.id()
	m.Email = email
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.data.members[m.ID] = *m
	return nil
}

func (s *Store) GetMember(ctx context.Context, id uint64) (model.Member, error) {
	defer s.lock(ctx)()
	m, ok := s.data.members[id]
	if !ok {
		return model.Member{}, service.ErrNotFound
	}
	return m, nil
}

func (s *Store) GetMemberByName(ctx context.Context, name string) (model.Member, error) {
	defer s.lock(ctx)()
	for _, m := range s.data.members {
		if m.Name == name {
			return m, nil
		}
	}
	return model.Member{}, service.ErrNotFound
}

func (s *Store) GetMemberByEmail(ctx context.Context, email string) (model.Member, error) {
	defer s.lock(ctx)()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, m := range s.data.members {
		if m.Email == email {
			return m, nil
		}
	}
	return model.Member{}, service.ErrNotFound
}

func (s *Store) AddCredit(ctx context.Context, memberID uint64, delta int) error {
	defer s.lock(ctx)()
	m, ok := s.data.members[memberID]
	if !ok {
		return service.ErrNotFound
	}
	m.Credit = policy.ClampCredit(m.Credit + delta)
	s.data.members[memberID] = m
	return nil
}

// ----- rooms and seats -----

func (s *Store) CreateRoom(ctx context.Context, r *model.Room) error {
	defer s.lock(ctx)()
	for _, existing := range s.data.rooms {
		if existing.Name == r.Name {
			return service.ErrDuplicate
		}
	}
	r.ID = s.data.id()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.data.rooms[r.ID] = *r
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	defer s.lock(ctx)()
	r, ok := s.data.rooms[id]
	if !ok {
		return model.Room{}, service.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]model.Room, error) {
	defer s.lock(ctx)()
	out := slices.Collect(maps.Values(s.data.rooms))
	slices.SortFunc(out, func(a, b model.Room) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// CreateSeats inserts seats for a room, rejecting duplicate positions.
func (s *Store) CreateSeats(ctx context.Context, roomID uint64, seats []model.Seat) ([]model.Seat, error) {
	defer s.lock(ctx)()
	if _, ok := s.data.rooms[roomID]; !ok {
		return nil, service.ErrNotFound
	}
	taken := map[[2]int]bool{}
	for _, seat := range s.data.seats {
		if seat.RoomID == roomID {
			taken[[2]int{seat.Row, seat.Col}] = true
		}
	}
	out := make([]model.Seat, 0, len(seats))
	for _, seat := range seats {
		pos := [2]int{seat.Row, seat.Col}
		if taken[pos] {
			return nil, service.ErrDuplicate
		}
		taken[pos] = true
		seat.ID = s.data.id()
		seat.RoomID = roomID
		out = append(out, seat)
	}
	for _, seat := range out {
		s.data.seats[seat.ID] = seat
	}
	return out, nil
}

func (s *Store) ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	defer s.lock(ctx)()
	var out []model.Seat
	for _, seat := range s.data.seats {
		if seat.RoomID == roomID {
			out = append(out, seat)
		}
	}
	slices.SortFunc(out, func(a, b model.Seat) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Col - b.Col
	})
	return out, nil
}

func (s *Store) GetSeat(ctx context.Context, id uint64) (model.Seat, error) {
	defer s.lock(ctx)()
	seat, ok := s.data.seats[id]
	if !ok {
		return model.Seat{}, service.ErrNotFound
	}
	return seat, nil
}

// LockSeat is GetSeat; the transaction already holds the store mutex.
func (s *Store) LockSeat(ctx context.Context, id uint64) (model.Seat, error) {
	return s.GetSeat(ctx, id)
}

// ----- bookings -----

func (s *Store) activeOverlapping(seatID uint64, window interval.Interval) []model.Booking {
	var out []model.Booking
	for _, b := range s.data.bookings {
		if b.SeatID != seatID || !model.IsActive(b.State) {
			continue
		}
		if interval.Overlaps(window, interval.Interval{Start: b.StartTime, End: b.EndTime}) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

func (s *Store) ListActiveBookings(ctx context.Context, seatID uint64, window interval.Interval) ([]model.Booking, error) {
	defer s.lock(ctx)()
	return s.activeOverlapping(seatID, window), nil
}

func (s *Store) InsertBooking(ctx context.Context, b *model.Booking) error {
	defer s.lock(ctx)()
	if _, ok := s.data.seats[b.SeatID]; !ok {
		return service.ErrNotFound
	}
	if _, ok := s.data.members[b.MemberID]; !ok {
		return service.ErrNotFound
	}
	if model.IsActive(b.State) &&
		len(s.activeOverlapping(b.SeatID, interval.Interval{Start: b.StartTime, End: b.EndTime})) > 0 {
		return service.ErrOverlap
	}
	b.ID = s.data.id()
	s.data.bookings[b.ID] = *b
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	defer s.lock(ctx)()
	b, ok := s.data.bookings[id]
	if !ok {
		return model.Booking{}, service.ErrNotFound
	}
	return b, nil
}

func (s *Store) TransitionBooking(ctx context.Context, t service.Transition) (bool, error) {
	defer s.lock(ctx)()
	b, ok := s.data.bookings[t.BookingID]
	if !ok || b.State != t.From {
		return false, nil
	}
	b.State = t.To
	if t.CheckInTime != nil {
		v := *t.CheckInTime
		b.CheckInTime = &v
	}
	if t.CheckOutTime != nil {
		v := *t.CheckOutTime
		b.CheckOutTime = &v
	}
	s.data.bookings[b.ID] = b
	return true, nil
}

func (s *Store) listWhere(keep func(model.Booking) bool) []model.Booking {
	var out []model.Booking
	for _, b := range s.data.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return int(a.ID) - int(b.ID)
	})
	return out
}

func (s *Store) ListMissedCheckIns(ctx context.Context, before time.Time) ([]model.Booking, error) {
	defer s.lock(ctx)()
	return s.listWhere(func(b model.Booking) bool {
		return b.State == model.StateBooked && b.StartTime.Before(before)
	}), nil
}

func (s *Store) ListMissedCheckOuts(ctx context.Context, before time.Time) ([]model.Booking, error) {
	defer s.lock(ctx)()
	return s.listWhere(func(b model.Booking) bool {
		return b.State == model.StateCheckedIn && b.EndTime.Before(before)
	}), nil
}

func (s *Store) ListBookingsByMember(ctx context.Context, memberID uint64) ([]model.Booking, error) {
	defer s.lock(ctx)()
	out := s.listWhere(func(b model.Booking) bool { return b.MemberID == memberID })
	slices.Reverse(out)
	return out, nil
}

// ----- violations -----

func (s *Store) InsertViolation(ctx context.Context, v *model.Violation) error {
	defer s.lock(ctx)()
	if _, ok := s.data.members[v.MemberID]; !ok {
		return service.ErrNotFound
	}
	v.ID = s.data.id()
	s.data.violations = append(s.data.violations, *v)
	return nil
}

func (s *Store) ListViolationsByMember(ctx context.Context, memberID uint64) ([]model.Violation, error) {
	defer s.lock(ctx)()
	var out []model.Violation
	for i := len(s.data.violations) - 1; i >= 0; i-- {
		if v := s.data.violations[i]; v.MemberID == memberID {
			out = append(out, v)
		}
	}
	return out, nil
}

// ----- refresh tokens -----

func (s *Store) StoreRefresh(ctx context.Context, memberID uint64, tokenHash string, exp time.Time) error {
	defer s.lock(ctx)()
	s.data.tokens[tokenHash] = refreshRow{memberID: memberID, expiresAt: exp}
	return nil
}

func (s *Store) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	defer s.lock(ctx)()
	row, ok := s.data.tokens[tokenHash]
	if !ok || row.revoked || time.Now().UTC().After(row.expiresAt) {
		return 0, service.ErrNotFound
	}
	return row.memberID, nil
}

func (s *Store) RevokeByHash(ctx context.Context, tokenHash string) error {
	defer s.lock(ctx)()
	if row, ok := s.data.tokens[tokenHash]; ok {
		row.revoked = true
		s.data.tokens[tokenHash] = row
	}
	return nil
}

func (s *Store) RevokeAllForMember(ctx context.Context, memberID uint64) error {
	defer s.lock(ctx)()
	for hash, row := range s.data.tokens {
		if row.memberID == memberID {
			row.revoked = true
			s.data.tokens[hash] = row
		}
	}
	return nil
}
