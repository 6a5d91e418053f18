package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Location turns positioning fixes into location records.
type Location struct {
	base
}

// NewLocation creates a location generator with a stream of the given capacity.
func NewLocation(registry Registry, capacity int, logger *zap.Logger) *Location {
	g := &Location{}
	g.init(record.TypeLocation, stream.FromDevice, capacity, registry, logger)
	return g
}

func (g *Location) Type() record.Type        { return record.TypeLocation }
func (g *Location) DependsOn() []record.Type { return nil }

func (g *Location) Register() error {
	return g.registry.Register(g.stream, record.TypeLocation, g)
}

func (g *Location) Unregister() error {
	return g.registry.Unregister(g.stream, g)
}

// Report records a fix. A zero at means now.
func (g *Location) Report(ctx context.Context, lat, lon, accuracy float64, at time.Time) (*record.Location, error) {
	r, err := record.NewLocation(lat, lon, accuracy, at)
	if err != nil {
		return nil, fmt.Errorf("report location: %w", err)
	}
	if err := g.push(ctx, r); err != nil {
		return nil, fmt.Errorf("report location: %w", err)
	}
	return r, nil
}
