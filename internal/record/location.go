package record

import (
	"fmt"
	"math"
	"time"
)

// Location is a raw positioning fix.
type Location struct {
	base
	latitude  float64
	longitude float64
	accuracy  float64 // meters
}

// NewLocation builds a location record. A zero at means now.
func NewLocation(lat, lon, accuracy float64, at time.Time) (*Location, error) {
	if !finite(lat) || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: latitude %.6f out of range", ErrInvalidRecord, lat)
	}
	if !finite(lon) || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: longitude %.6f out of range", ErrInvalidRecord, lon)
	}
	if !finite(accuracy) || accuracy < 0 {
		return nil, fmt.Errorf("%w: accuracy %.2f", ErrInvalidRecord, accuracy)
	}
	return &Location{base: stamp(at), latitude: lat, longitude: lon, accuracy: accuracy}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (l *Location) Type() Type         { return TypeLocation }
func (l *Location) Latitude() float64  { return l.latitude }
func (l *Location) Longitude() float64 { return l.longitude }
func (l *Location) Accuracy() float64  { return l.accuracy }

// SemanticLocation names the place a location fix falls into.
type SemanticLocation struct {
	base
	place  string
	source *Location
}

// Unknown is the place label used when no configured place matches.
const Unknown = "unknown"

// NewSemanticLocation derives a semantic location from a raw fix. The new
// record keeps the fix's creation time.
func NewSemanticLocation(place string, source *Location) *SemanticLocation {
	if place == "" {
		place = Unknown
	}
	at := time.Time{}
	if source != nil {
		at = source.CreatedAt()
	}
	return &SemanticLocation{base: stamp(at), place: place, source: source}
}

func (s *SemanticLocation) Type() Type        { return TypeSemanticLocation }
func (s *SemanticLocation) Place() string     { return s.place }
func (s *SemanticLocation) Source() *Location { return s.source }
