package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/apperr"
	"campusattend/internal/clock"
	"campusattend/internal/geo"
)

// Repository persists entries.
//
// InsertIfAbsent is the atomic create-or-fetch on (student, day): when an
// entry already exists it is returned unchanged with created == false.
// SetCheckOut sets the check-out time only if it is unset; it returns the
// stored entry and whether it changed, or NotFound when there is no entry.
type Repository interface {
	InsertIfAbsent(ctx context.Context, e Entry) (stored Entry, created bool, err error)
	Get(ctx context.Context, studentID string, day time.Time) (Entry, error)
	SetCheckOut(ctx context.Context, studentID string, day, at time.Time) (stored Entry, changed bool, err error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	Summary(ctx context.Context, f Filter) (Summary, error)
}

// Ledger is the only writer of attendance entries.
type Ledger struct {
	repo  Repository
	clock clock.Clock
	zone  *time.Location
}

func NewLedger(repo Repository, clk clock.Clock, zone *time.Location) *Ledger {
	if zone == nil {
		zone = time.UTC
	}
	return &Ledger{repo: repo, clock: clk, zone: zone}
}

// With returns a Ledger writing through repo, typically transaction-scoped.
func (l *Ledger) With(repo Repository) *Ledger {
	return &Ledger{repo: repo, clock: l.clock, zone: l.zone}
}

func (l *Ledger) Today() time.Time { return Day(l.clock.Now(), l.zone) }

type CheckIn struct {
	StudentID   string
	LocationID  string
	Coordinates geo.Point
}

// CheckIn records today's entry. A second check-in on the same day returns
// the existing entry untouched with created == false. Callers must have
// passed the admission gate already.
func (l *Ledger) CheckIn(ctx context.Context, in CheckIn) (Entry, bool, error) {
	if strings.TrimSpace(in.StudentID) == "" {
		return Entry{}, false, apperr.InvalidInput("student id is required")
	}
	if strings.TrimSpace(in.LocationID) == "" {
		return Entry{}, false, apperr.InvalidInput("location id is required")
	}
	now := l.clock.Now()
	return l.repo.InsertIfAbsent(ctx, Entry{
		ID:          uuid.NewString(),
		StudentID:   in.StudentID,
		Day:         Day(now, l.zone),
		Status:      StatusPresent,
		CheckInAt:   now.UTC(),
		Coordinates: in.Coordinates,
		LocationID:  in.LocationID,
	})
}

// CheckOut closes today's entry. Checking out twice keeps the first
// timestamp and reports changed == false.
func (l *Ledger) CheckOut(ctx context.Context, studentID string) (Entry, bool, error) {
	if strings.TrimSpace(studentID) == "" {
		return Entry{}, false, apperr.InvalidInput("student id is required")
	}
	now := l.clock.Now()
	e, changed, err := l.repo.SetCheckOut(ctx, studentID, Day(now, l.zone), now.UTC())
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return Entry{}, false, apperr.ErrNotCheckedIn
	}
	return e, changed, err
}

// Status returns today's entry and derived state. The entry is the zero
// value when the student has not checked in.
func (l *Ledger) Status(ctx context.Context, studentID string) (Entry, State, error) {
	e, err := l.repo.Get(ctx, studentID, l.Today())
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return Entry{}, StateNoEntry, nil
	}
	if err != nil {
		return Entry{}, "", err
	}
	return e, e.State(), nil
}

// List returns entries newest day first, latest check-in first within a day.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Entry, error) {
	if err := checkRange(f); err != nil {
		return nil, err
	}
	return l.repo.List(ctx, f.normalized())
}

// Summary counts the entries f selects. Limit and Offset are ignored.
func (l *Ledger) Summary(ctx context.Context, f Filter) (Summary, error) {
	if err := checkRange(f); err != nil {
		return Summary{}, err
	}
	return l.repo.Summary(ctx, f)
}

func checkRange(f Filter) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return apperr.InvalidInput("'to' date is before 'from' date")
	}
	return nil
}

func entryNotFound(studentID string, day time.Time) error {
	return apperr.Newf(apperr.CodeNotFound, "no attendance entry for %s on %s", studentID, FormatDay(day))
}
