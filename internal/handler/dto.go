package handler

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/checkin"
	"campusattend/internal/credential"
	"campusattend/internal/location"
)

type locationDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters int       `json:"radius_m"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toLocation(l location.Location) locationDTO {
	return locationDTO{
		ID:           l.ID,
		Name:         l.Name,
		Latitude:     l.Center.Lat(),
		Longitude:    l.Center.Lng(),
		RadiusMeters: l.RadiusMeters,
		UpdatedAt:    l.UpdatedAt,
	}
}

type entryDTO struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	Day        string     `json:"day"`
	Status     string     `json:"status"`
	CheckInAt  time.Time  `json:"check_in_at"`
	CheckOutAt *time.Time `json:"check_out_at"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	LocationID string     `json:"location_id"`
}

func toEntry(e attendance.Entry) entryDTO {
	return entryDTO{
		ID:         e.ID,
		StudentID:  e.StudentID,
		Day:        attendance.FormatDay(e.Day),
		Status:     string(e.Status),
		CheckInAt:  e.CheckInAt,
		CheckOutAt: e.CheckOutAt,
		Latitude:   e.Coordinates.Lat(),
		Longitude:  e.Coordinates.Lng(),
		LocationID: e.LocationID,
	}
}

func toEntries(es []attendance.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toEntry(e))
	}
	return out
}

type outcomeDTO struct {
	Result         checkin.Result `json:"result"`
	Message        string         `json:"message"`
	DistanceMeters *float64       `json:"distance_m,omitempty"`
	Entry          entryDTO       `json:"entry"`
}

func toOutcome(o checkin.Outcome) outcomeDTO {
	return outcomeDTO{Result: o.Result, Message: o.Message, DistanceMeters: o.DistanceMeters, Entry: toEntry(o.Entry)}
}

type credentialDTO struct {
	StudentID    string    `json:"student_id"`
	CredentialID string    `json:"credential_id"`
	SignCount    uint32    `json:"sign_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCredential(c credential.Credential) credentialDTO {
	return credentialDTO{
		StudentID:    c.StudentID,
		CredentialID: base64.RawURLEncoding.EncodeToString(c.CredentialID),
		SignCount:    c.SignCount,
		CreatedAt:    c.CreatedAt,
	}
}

type checkInRequest struct {
	LocationID string          `json:"location_id"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	Assertion  json.RawMessage `json:"assertion,omitempty"`
}

// locationRequest keeps coordinates as pointers so an omitted field is
// told apart from the equator or the prime meridian.
type locationRequest struct {
	Name         string   `json:"name"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters int      `json:"radius_m"`
}

func (r locationRequest) input() (location.Input, error) {
	if r.Latitude == nil || r.Longitude == nil {
		return location.Input{}, apperr.InvalidInput("latitude and longitude are required")
	}
	return location.Input{Name: r.Name, Latitude: *r.Latitude, Longitude: *r.Longitude, RadiusMeters: r.RadiusMeters}, nil
}

type dayCountDTO struct {
	Day        string `json:"day"`
	Present    int    `json:"present"`
	CheckedOut int    `json:"checked_out"`
}

type locationCountDTO struct {
	LocationID string `json:"location_id"`
	Present    int    `json:"present"`
}

type summaryDTO struct {
	Present    int                `json:"present"`
	CheckedOut int                `json:"checked_out"`
	ByDay      []dayCountDTO      `json:"by_day"`
	ByLocation []locationCountDTO `json:"by_location"`
}

func toSummary(s attendance.Summary) summaryDTO {
	out := summaryDTO{
		Present:    s.Present,
		CheckedOut: s.CheckedOut,
		ByDay:      make([]dayCountDTO, 0, len(s.ByDay)),
		ByLocation: make([]locationCountDTO, 0, len(s.ByLocation)),
	}
	for _, d := range s.ByDay {
		out.ByDay = append(out.ByDay, dayCountDTO{Day: attendance.FormatDay(d.Day), Present: d.Present, CheckedOut: d.CheckedOut})
	}
	for _, l := range s.ByLocation {
		out.ByLocation = append(out.ByLocation, locationCountDTO{LocationID: l.LocationID, Present: l.Present})
	}
	return out
}

type registrationOptionsRequest struct {
	DisplayName string `json:"display_name"`
}
