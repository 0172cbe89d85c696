package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Room capacity bounds for rows and columns.
const (
	MinRoomDimension = 1
	MaxRoomDimension = 2048
)

// TimeOfDay is a wall-clock time without a date, stored as minutes
// after midnight.  1440 stands for "24:00", the end of the day.
type TimeOfDay int

// EndOfDay is the latest representable TimeOfDay.
const EndOfDay TimeOfDay = 24 * 60

var errBadTimeOfDay = errors.New("time of day must be HH:MM between 00:00 and 24:00")

// ParseTimeOfDay parses "HH:MM" (or "HH:MM:SS" with zero seconds).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errBadTimeOfDay
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errBadTimeOfDay
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errBadTimeOfDay
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, errBadTimeOfDay
	}
	t := TimeOfDay(h*60 + m)
	if h < 0 || t > EndOfDay {
		return 0, errBadTimeOfDay
	}
	return t, nil
}

// Offset returns the duration since midnight.
func (t TimeOfDay) Offset() time.Duration { return time.Duration(t) * time.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Room is a bookable space holding a grid of seats.  Open and close
// times are interpreted in the service's configured location.
type Room struct {
	ID        uint64    `json:"id"`         // rooms.id
	Name      string    `json:"name"`       // rooms.name
	OpenTime  TimeOfDay `json:"open_time"`  // rooms.open_minute
	CloseTime TimeOfDay `json:"close_time"` // rooms.close_minute
	Rows      int       `json:"rows"`       // rooms.seat_rows
	Cols      int       `json:"cols"`       // rooms.seat_cols
	CreatedAt time.Time `json:"created_at"` // rooms.created_at
}

// Validate checks the opening window and capacity bounds.
func (r Room) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if r.OpenTime < 0 || r.CloseTime > EndOfDay || r.OpenTime >= r.CloseTime {
		return errors.New("open_time must be before close_time")
	}
	if r.Rows < MinRoomDimension || r.Rows > MaxRoomDimension ||
		r.Cols < MinRoomDimension || r.Cols > MaxRoomDimension {
		return fmt.Errorf("rows and cols must be between %d and %d", MinRoomDimension, MaxRoomDimension)
	}
	return nil
}
