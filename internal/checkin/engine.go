// Package checkin decides check-in and check-out requests: a student must
// hold a registered credential, stand within the location radius and, when
// required, present a valid passkey assertion before the day's entry is
// touched.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/audit"
	"campusattend/internal/challenge"
	"campusattend/internal/clock"
	"campusattend/internal/credential"
	"campusattend/internal/geo"
	"campusattend/internal/location"
	"campusattend/internal/metrics"
	"campusattend/internal/store"
)

type Result string

const (
	ResultCheckedIn         Result = "checked_in"
	ResultAlreadyCheckedIn  Result = "already_checked_in"
	ResultCheckedOut        Result = "checked_out"
	ResultAlreadyCheckedOut Result = "already_checked_out"
)

var validate = validator.New()

// Request is a parsed check-in. Assertion is the serialized
// PublicKeyCredential, empty when the client did not run a ceremony.
type Request struct {
	StudentID  string `validate:"required,max=128"`
	LocationID string `validate:"required,max=128"`
	Latitude   float64
	Longitude  float64
	Assertion  []byte
}

func (r Request) Validate() error {
	return apperr.Validation(validate.Struct(r))
}

// Outcome is what the caller renders. DistanceMeters is set for check-ins.
type Outcome struct {
	Result         Result
	Message        string
	Entry          attendance.Entry
	DistanceMeters *float64
}

// Verifier checks an assertion and returns the authenticator's new counter.
type Verifier interface {
	Verify(ctx context.Context, studentID string, assertion []byte, purpose challenge.Purpose) (uint32, error)
}

// AuditSink receives one event per decision. Publish errors are logged.
type AuditSink interface {
	Publish(ctx context.Context, e audit.Event) error
}

type Deps struct {
	Locations   *location.Registry
	Credentials *credential.Store
	Ledger      *attendance.Ledger
	Verifier    Verifier
	Tx          store.Transactor
	Clock       clock.Clock
	Zone        *time.Location
	Metrics     *metrics.Metrics
	Audit       AuditSink
	Log         logrus.FieldLogger

	// RequireAssertion rejects check-ins that carry no assertion.
	RequireAssertion bool
}

type Engine struct {
	Deps
}

func NewEngine(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Zone == nil {
		d.Zone = time.UTC
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	return &Engine{Deps: d}
}

// CheckIn runs the admission gate, then the assertion gate, then records
// the day's entry and advances the credential counter in one unit of work.
// A rejection at any step leaves the entry and the counter untouched.
func (e *Engine) CheckIn(ctx context.Context, req Request) (out Outcome, err error) {
	defer func() { e.decided(ctx, metrics.ActionCheckIn, req.StudentID, req.LocationID, out, err) }()

	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	point, err := geo.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := e.Credentials.Get(ctx, req.StudentID); err != nil {
		return Outcome{}, err
	}

	loc, distance, err := e.admit(ctx, req.LocationID, point)
	if apperr.CodeOf(err) == apperr.CodeTooFar {
		return Outcome{DistanceMeters: &distance}, err
	}
	if err != nil {
		return Outcome{}, err
	}

	var counter uint32
	verified := false
	switch {
	case len(req.Assertion) > 0:
		counter, err = e.Verifier.Verify(ctx, req.StudentID, req.Assertion, challenge.PurposeAuthentication)
		if err != nil {
			return Outcome{DistanceMeters: &distance}, err
		}
		verified = true
	case e.RequireAssertion:
		return Outcome{DistanceMeters: &distance}, apperr.InvalidInput("a passkey assertion is required to check in")
	}

	var entry attendance.Entry
	var created bool
	err = e.Tx.WithinTx(ctx, func(r store.Repos) error {
		if verified {
			if err := e.Credentials.With(r.Credentials).AdvanceCounter(ctx, req.StudentID, counter); err != nil {
				return err
			}
		}
		var err error
		entry, created, err = e.Ledger.With(r.Attendance).CheckIn(ctx, attendance.CheckIn{
			StudentID:   req.StudentID,
			LocationID:  loc.ID,
			Coordinates: point,
		})
		return err
	})
	if err != nil {
		return Outcome{DistanceMeters: &distance}, err
	}

	out = Outcome{Entry: entry, DistanceMeters: &distance}
	if created {
		out.Result = ResultCheckedIn
		out.Message = fmt.Sprintf("checked in at %s", loc.Name)
	} else {
		out.Result = ResultAlreadyCheckedIn
		out.Message = fmt.Sprintf("already checked in at %s since %s",
			e.locationName(ctx, entry.LocationID, loc), e.clockTime(entry.CheckInAt))
	}
	return out, nil
}

// admit resolves the location and requires distance <= radius.
func (e *Engine) admit(ctx context.Context, locationID string, p geo.Point) (location.Location, float64, error) {
	loc, err := e.Locations.Resolve(ctx, locationID)
	if err != nil {
		return location.Location{}, 0, err
	}
	distance := geo.Distance(p, loc.Center)
	if e.Metrics != nil {
		e.Metrics.Distance.Observe(distance)
	}
	if !geo.Within(distance, loc.RadiusMeters) {
		return loc, distance, apperr.TooFar(distance, loc.RadiusMeters, loc.Name)
	}
	return loc, distance, nil
}

// CheckOut closes the student's entry for today.
func (e *Engine) CheckOut(ctx context.Context, studentID string) (out Outcome, err error) {
	defer func() { e.decided(ctx, metrics.ActionCheckOut, studentID, out.Entry.LocationID, out, err) }()

	var changed bool
	err = e.Tx.WithinTx(ctx, func(r store.Repos) error {
		var err error
		out.Entry, changed, err = e.Ledger.With(r.Attendance).CheckOut(ctx, studentID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	if changed {
		out.Result = ResultCheckedOut
		out.Message = fmt.Sprintf("checked out at %s", e.clockTime(*out.Entry.CheckOutAt))
	} else {
		out.Result = ResultAlreadyCheckedOut
		out.Message = fmt.Sprintf("already checked out at %s", e.clockTime(*out.Entry.CheckOutAt))
	}
	return out, nil
}

// Today is a student's derived state for the current campus day. Entry is
// nil when there is none.
type Today struct {
	Day   time.Time
	State attendance.State
	Entry *attendance.Entry
}

func (e *Engine) Status(ctx context.Context, studentID string) (Today, error) {
	if studentID == "" {
		return Today{}, apperr.InvalidInput("student id is required")
	}
	entry, state, err := e.Ledger.Status(ctx, studentID)
	if err != nil {
		return Today{}, err
	}
	t := Today{Day: e.Ledger.Today(), State: state}
	if state != attendance.StateNoEntry {
		t.Entry = &entry
	}
	return t, nil
}

func (e *Engine) locationName(ctx context.Context, id string, requested location.Location) string {
	if id == requested.ID {
		return requested.Name
	}
	if loc, err := e.Locations.Resolve(ctx, id); err == nil {
		return loc.Name
	}
	return id
}

func (e *Engine) clockTime(t time.Time) string {
	return t.In(e.Zone).Format("15:04")
}

func (e *Engine) decided(ctx context.Context, action, studentID, locationID string, out Outcome, err error) {
	e.Metrics.Decision(action, string(out.Result), err)

	log := e.Log.WithFields(logrus.Fields{
		"action":      action,
		"student_id":  studentID,
		"location_id": locationID,
	})
	if out.DistanceMeters != nil {
		log = log.WithField("distance_m", fmt.Sprintf("%.1f", *out.DistanceMeters))
	}

	ev := audit.Event{
		Action:         action,
		Result:         string(out.Result),
		StudentID:      studentID,
		LocationID:     locationID,
		DistanceMeters: out.DistanceMeters,
		OccurredAt:     e.Clock.Now().UTC(),
	}
	switch code := apperr.CodeOf(err); {
	case err == nil:
		log.WithField("result", out.Result).Info("attendance decision")
	case code == apperr.CodeInternal:
		ev.Result, ev.Code = "error", string(code)
		log.WithError(err).Error("attendance decision failed")
	default:
		ev.Result, ev.Code = "rejected", string(code)
		log.WithField("code", code).Warn(apperr.MessageOf(err))
	}

	if e.Audit != nil {
		if perr := e.Audit.Publish(ctx, ev); perr != nil {
			e.Log.WithError(perr).Warn("audit publish failed")
		}
	}
}
