// Package policy holds the product rules the booking engine enforces:
// credit bands, opening hours, check windows and penalties.
package policy

import (
	"time"

	"github.com/iliyamo/seat-reservation/internal/interval"
	"github.com/iliyamo/seat-reservation/internal/model"
)

const (
	CreditFloor   = 0
	CreditCeiling = 100

	// CheckOutReward is added to a member's credit on a timely check-out.
	CheckOutReward = 5

	// CheckWindow is the tolerance around start (check-in) and end
	// (check-out); the sweeper waits the same amount past each deadline.
	CheckWindow = 15 * time.Minute

	// CancelNotice is the minimum lead time for a cancellation without force.
	CancelNotice = 3 * time.Hour

	TimeoutPenalty      = 10
	ForcedCancelPenalty = 5
)

// MaxDuration returns the longest booking a member with the given credit
// may hold. Zero means the member may not book at all.
func MaxDuration(credit int) time.Duration {
	switch {
	case credit < 40:
		return 0
	case credit < 60:
		return 2 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ClampCredit bounds c to [CreditFloor, CreditCeiling].
func ClampCredit(c int) int {
	return min(max(c, CreditFloor), CreditCeiling)
}

// Penalty returns the credit deducted for a violation type. Administrative
// actions carry their own amount and return 0 here.
func Penalty(t model.ViolationType) int {
	switch t {
	case model.ViolationTimeout:
		return TimeoutPenalty
	case model.ViolationForcedCancel:
		return ForcedCancelPenalty
	}
	return 0
}

// WithinWindow reports whether |target-now| <= w.
func WithinWindow(target, now time.Time, w time.Duration) bool {
	d := target.Sub(now)
	if d < 0 {
		d = -d
	}
	return d <= w
}

// wallClock returns t's local time of day as a duration since midnight,
// read from the clock face rather than elapsed since midnight.
func wallClock(t time.Time) time.Duration {
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(t.Nanosecond())
}

// at returns the instant the local clock shows tod on the given day. 24:00
// normalizes to the following midnight.
func at(y int, m time.Month, d int, tod model.TimeOfDay, loc *time.Location) time.Time {
	return time.Date(y, m, d, int(tod)/60, int(tod)%60, 0, 0, loc)
}

// WithinOpeningHours reports whether [start, end) lies inside the room's
// open window on a single local calendar day. A room closing at 24:00 may
// be booked up to the following local midnight.
func WithinOpeningHours(room model.Room, start, end time.Time, loc *time.Location) bool {
	if !start.Before(end) {
		return false
	}
	ls, le := start.In(loc), end.In(loc)
	if wallClock(ls) < room.OpenTime.Offset() {
		return false
	}
	y, m, d := ls.Date()
	ey, em, ed := le.Date()
	if ey == y && em == m && ed == d {
		return wallClock(le) <= room.CloseTime.Offset()
	}
	return room.CloseTime == model.EndOfDay && end.Equal(at(y, m, d, model.EndOfDay, loc))
}

// OpeningWindows clips [from, to) to the room's open hours on every
// local day it touches. Windows are returned in UTC and in order.
func OpeningWindows(room model.Room, from, to time.Time, loc *time.Location) []interval.Interval {
	var out []interval.Interval
	if !from.Before(to) {
		return out
	}
	y, m, d := from.In(loc).Date()
	for ; at(y, m, d, 0, loc).Before(to); d++ {
		w := interval.Interval{
			Start: at(y, m, d, room.OpenTime, loc),
			End:   at(y, m, d, room.CloseTime, loc),
		}
		if w.Start.Before(from) {
			w.Start = from
		}
		if to.Before(w.End) {
			w.End = to
		}
		if w.Empty() {
			continue
		}
		out = append(out, interval.Interval{Start: w.Start.UTC(), End: w.End.UTC()})
	}
	return out
}
