package generator

import (
	"context"
	"sync/atomic"

	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Registry is the part of the stream manager a generator talks to.
type Registry interface {
	Register(s *stream.Stream, t record.Type, g stream.Generator) error
	Unregister(s *stream.Stream, g stream.Generator) error
	Push(ctx context.Context, r record.Record) error
}

// base holds what every generator shares: its stream, the registry it
// pushes through and an on/off switch.
type base struct {
	stream   *stream.Stream
	registry Registry
	active   atomic.Bool
	logger   *zap.Logger
}

func (b *base) init(t record.Type, kind stream.Kind, capacity int, registry Registry, logger *zap.Logger) {
	b.stream = stream.New(t, kind, capacity)
	b.registry = registry
	b.logger = logger
	b.active.Store(true)
}

// Stream returns the stream owned by the generator.
func (b *base) Stream() *stream.Stream { return b.stream }

// Active reports whether the generator is currently producing data.
func (b *base) Active() bool { return b.active.Load() }

// SetActive switches data production on or off.
func (b *base) SetActive(on bool) { b.active.Store(on) }

func (b *base) push(ctx context.Context, r record.Record) error {
	if !b.Active() {
		b.logger.Debug("inactive generator dropped record", zap.String("type", string(r.Type())))
		return nil
	}
	return b.registry.Push(ctx, r)
}
