// Package interval computes free time within a bounding window.
package interval

import (
	"iter"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty reports whether the interval contains no instant.
func (i Interval) Empty() bool { return !i.Start.Before(i.End) }

// Duration is End-Start, or zero for an empty interval.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two half-open intervals share an instant.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Gaps yields the maximal sub-intervals of window not covered by busy.
//
// busy must be ordered by Start. Intervals reaching outside window are
// clipped; ones ending at or before the cursor only advance it.
func Gaps(window Interval, busy []Interval) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		cursor := window.Start
		for _, b := range busy {
			if !cursor.Before(window.End) {
				return
			}
			if cursor.Before(b.Start) {
				end := b.Start
				if window.End.Before(end) {
					end = window.End
				}
				if !yield(Interval{Start: cursor, End: end}) {
					return
				}
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(window.End) {
			yield(Interval{Start: cursor, End: window.End})
		}
	}
}
