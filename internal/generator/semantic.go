package generator

import (
	"context"
	"fmt"
	"math"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

const earthRadius = 6371000.0 // meters

// Place is a named circular geofence.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"` // meters
}

// Contains reports whether the point lies within the place's radius.
func (p Place) Contains(lat, lon float64) bool {
	return Distance(p.Latitude, p.Longitude, lat, lon) <= p.Radius
}

// Distance is the haversine distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

// SemanticLocation derives named places from raw location records.
type SemanticLocation struct {
	base
	places []Place
}

// NewSemanticLocation creates a derived generator classifying fixes against
// places. The first matching place wins.
func NewSemanticLocation(registry Registry, capacity int, places []Place, logger *zap.Logger) *SemanticLocation {
	g := &SemanticLocation{places: append([]Place(nil), places...)}
	g.init(record.TypeSemanticLocation, stream.Derived, capacity, registry, logger)
	return g
}

func (g *SemanticLocation) Type() record.Type { return record.TypeSemanticLocation }

func (g *SemanticLocation) DependsOn() []record.Type {
	return []record.Type{record.TypeLocation}
}

func (g *SemanticLocation) Register() error {
	return g.registry.Register(g.stream, record.TypeSemanticLocation, g)
}

func (g *SemanticLocation) Unregister() error {
	return g.registry.Unregister(g.stream, g)
}

// Classify returns the name of the first place containing the point, or
// record.Unknown.
func (g *SemanticLocation) Classify(lat, lon float64) string {
	for _, p := range g.places {
		if p.Contains(lat, lon) {
			return p.Name
		}
	}
	return record.Unknown
}

// OnDependencyChange derives a semantic location from every new fix.
func (g *SemanticLocation) OnDependencyChange(ctx context.Context, ev event.StateChange) error {
	loc, ok := ev.Record.(*record.Location)
	if !ok {
		return fmt.Errorf("semantic location: unexpected record %T", ev.Record)
	}
	place := g.Classify(loc.Latitude(), loc.Longitude())
	g.logger.Debug("location classified",
		zap.String("place", place),
		zap.Float64("lat", loc.Latitude()),
		zap.Float64("lon", loc.Longitude()))
	return g.push(ctx, record.NewSemanticLocation(place, loc))
}
