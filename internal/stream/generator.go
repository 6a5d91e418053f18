package stream

import (
	"context"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
)

// Generator produces records of one type and owns the stream they go into.
type Generator interface {
	// Type is the record type the generator produces.
	Type() record.Type
	// DependsOn lists the record types a derived generator reads. Each must
	// already have a registered stream when the generator registers.
	DependsOn() []record.Type
}

// DependencyHandler is implemented by derived generators that react to new
// records of the types they depend on.
type DependencyHandler interface {
	OnDependencyChange(ctx context.Context, ev event.StateChange) error
}

// ActivityReporter is implemented by generators that can be switched off.
// Generators without it are considered active while registered.
type ActivityReporter interface {
	Active() bool
}
