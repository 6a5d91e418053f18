package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Mood turns self-reported mood entries into mood records.
type Mood struct {
	base
}

// NewMood creates a mood generator with a stream of the given capacity.
func NewMood(registry Registry, capacity int, logger *zap.Logger) *Mood {
	g := &Mood{}
	g.init(record.TypeMood, stream.FromDevice, capacity, registry, logger)
	return g
}

func (g *Mood) Type() record.Type        { return record.TypeMood }
func (g *Mood) DependsOn() []record.Type { return nil }

// Register registers the generator and its stream.
func (g *Mood) Register() error {
	return g.registry.Register(g.stream, record.TypeMood, g)
}

// Unregister removes the generator and its stream.
func (g *Mood) Unregister() error {
	return g.registry.Unregister(g.stream, g)
}

// Report records a mood entry. A zero at means now.
func (g *Mood) Report(ctx context.Context, mood, energy float64, at time.Time) (*record.Mood, error) {
	r, err := record.NewMood(mood, energy, at)
	if err != nil {
		return nil, fmt.Errorf("report mood: %w", err)
	}
	if err := g.push(ctx, r); err != nil {
		return nil, fmt.Errorf("report mood: %w", err)
	}
	return r, nil
}
