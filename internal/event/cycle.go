package event

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nidhogg/minuku/internal/record"
)

// Cycle is one dispatch cycle: a root push and every push, evaluation and
// publish that cascades from it. It travels in a context.Context.
type Cycle struct {
	id        string
	mu        sync.Mutex
	held      map[record.Type]struct{}
	evaluated map[string]struct{}
}

type cycleKey struct{}

// WithCycle returns ctx unchanged if it already carries a cycle, otherwise a
// child context carrying a new one.
func WithCycle(ctx context.Context) (context.Context, *Cycle) {
	if c := CycleFrom(ctx); c != nil {
		return ctx, c
	}
	c := &Cycle{
		id:        uuid.New().String(),
		held:      make(map[record.Type]struct{}),
		evaluated: make(map[string]struct{}),
	}
	return context.WithValue(ctx, cycleKey{}, c), c
}

// CycleFrom returns the cycle carried by ctx, or nil.
func CycleFrom(ctx context.Context) *Cycle {
	c, _ := ctx.Value(cycleKey{}).(*Cycle)
	return c
}

// detachCycle hides any cycle carried by ctx. Pushes made from an async
// subscriber start a cycle of their own.
func detachCycle(ctx context.Context) context.Context {
	if CycleFrom(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, cycleKey{}, (*Cycle)(nil))
}

func (c *Cycle) ID() string { return c.id }

// Hold marks t as being pushed within this cycle. It returns false if t is
// already held, i.e. the cascade loops back onto a type it started from.
func (c *Cycle) Hold(t record.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[t]; ok {
		return false
	}
	c.held[t] = struct{}{}
	return true
}

// Release undoes Hold.
func (c *Cycle) Release(t record.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, t)
}

// MarkEvaluated records that key was evaluated in this cycle and reports
// whether this is the first time.
func (c *Cycle) MarkEvaluated(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.evaluated[key]; ok {
		return false
	}
	c.evaluated[key] = struct{}{}
	return true
}
