// Package attendance is the daily attendance state machine. A student has
// at most one entry per campus calendar day.
package attendance

import (
	"time"

	"campusattend/internal/geo"
)

type Status string

const (
	StatusPresent Status = "present"
	// StatusAbsent is never stored; a missing entry means absent.
	StatusAbsent Status = "absent"
)

type State string

const (
	StateNoEntry    State = "no_entry"
	StateCheckedIn  State = "checked_in"
	StateCheckedOut State = "checked_out"
)

// Entry is the attendance record for one student on one day.
type Entry struct {
	ID          string
	StudentID   string
	Day         time.Time
	Status      Status
	CheckInAt   time.Time
	CheckOutAt  *time.Time
	Coordinates geo.Point
	LocationID  string
}

func (e Entry) State() State {
	switch {
	case e.ID == "":
		return StateNoEntry
	case e.CheckOutAt != nil:
		return StateCheckedOut
	default:
		return StateCheckedIn
	}
}

// Filter narrows List results. Zero values leave a dimension open.
type Filter struct {
	StudentID  string
	LocationID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

const dayLayout = "2006-01-02"

// Day returns the calendar date of t in zone as midnight UTC, the form
// stored in the day column.
func Day(t time.Time, zone *time.Location) time.Time {
	y, m, d := t.In(zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

func FormatDay(day time.Time) string { return day.Format(dayLayout) }

// Summary counts the entries a Filter selects. Every entry is a present
// mark; absence is not counted because the service keeps no roster of
// expected students.
type Summary struct {
	Present    int
	CheckedOut int
	ByDay      []DayCount
	ByLocation []LocationCount
}

type DayCount struct {
	Day        time.Time
	Present    int
	CheckedOut int
}

type LocationCount struct {
	LocationID string
	Present    int
}

func (f Filter) matches(e Entry) bool {
	switch {
	case f.StudentID != "" && e.StudentID != f.StudentID:
		return false
	case f.LocationID != "" && e.LocationID != f.LocationID:
		return false
	case !f.From.IsZero() && e.Day.Before(f.From):
		return false
	case !f.To.IsZero() && e.Day.After(f.To):
		return false
	}
	return true
}
