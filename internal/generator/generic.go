package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Generic produces records of a type configured at runtime, for sources
// that have no dedicated generator.
type Generic struct {
	base
	recordType record.Type
	deps       []record.Type
}

// NewGeneric creates a generator for t.
func NewGeneric(t record.Type, kind stream.Kind, capacity int, deps []record.Type, registry Registry, logger *zap.Logger) *Generic {
	g := &Generic{recordType: t, deps: append([]record.Type(nil), deps...)}
	g.init(t, kind, capacity, registry, logger)
	return g
}

func (g *Generic) Type() record.Type { return g.recordType }

func (g *Generic) DependsOn() []record.Type {
	return append([]record.Type(nil), g.deps...)
}

func (g *Generic) Register() error {
	return g.registry.Register(g.stream, g.recordType, g)
}

func (g *Generic) Unregister() error {
	return g.registry.Unregister(g.stream, g)
}

// Report pushes a record carrying data. A zero at means now.
func (g *Generic) Report(ctx context.Context, data map[string]any, at time.Time) (*record.Generic, error) {
	r := record.NewGeneric(g.recordType, data, at)
	if err := g.push(ctx, r); err != nil {
		return nil, fmt.Errorf("report %s: %w", g.recordType, err)
	}
	return r, nil
}
