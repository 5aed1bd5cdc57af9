// Package geo holds campus coordinates and the great-circle distance used
// by the admission gate.
package geo

import (
	"fmt"
	"math"

	"github.com/umahmood/haversine"

	"campusattend/internal/apperr"
)

// scale is the fixed precision for stored coordinates: 1e-7 degrees,
// roughly 1cm at the equator.
const scale = 1e7

// Point is a coordinate stored as scaled integers so that values read back
// from storage compare equal to the values written.
type Point struct {
	LatE7 int64 `json:"lat_e7"`
	LngE7 int64 `json:"lng_e7"`
}

// NewPoint validates decimal degrees and quantizes them.
func NewPoint(lat, lng float64) (Point, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Point{}, apperr.New(apperr.CodeInvalidCoordinate, "coordinates must be finite")
	}
	if lat < -90 || lat > 90 {
		return Point{}, apperr.Newf(apperr.CodeInvalidCoordinate, "latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return Point{}, apperr.Newf(apperr.CodeInvalidCoordinate, "longitude %v out of range [-180, 180]", lng)
	}
	return Point{
		LatE7: int64(math.Round(lat * scale)),
		LngE7: int64(math.Round(lng * scale)),
	}, nil
}

// MustPoint is NewPoint for literals known to be valid.
func MustPoint(lat, lng float64) Point {
	p, err := NewPoint(lat, lng)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Point) Lat() float64 { return float64(p.LatE7) / scale }

func (p Point) Lng() float64 { return float64(p.LngE7) / scale }

func (p Point) String() string {
	return fmt.Sprintf("(%.7f, %.7f)", p.Lat(), p.Lng())
}

// Distance is the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat(), Lon: a.Lng()},
		haversine.Coord{Lat: b.Lat(), Lon: b.Lng()},
	)
	return km * 1000
}

// DistanceDegrees validates both coordinate pairs and returns the distance
// between them in meters.
func DistanceDegrees(lat1, lon1, lat2, lon2 float64) (float64, error) {
	a, err := NewPoint(lat1, lon1)
	if err != nil {
		return 0, err
	}
	b, err := NewPoint(lat2, lon2)
	if err != nil {
		return 0, err
	}
	return Distance(a, b), nil
}

// Within reports whether distance is inside radius. The boundary passes.
func Within(distance float64, radiusMeters int) bool {
	return distance <= float64(radiusMeters)
}
