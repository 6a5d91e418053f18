package situation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/metrics"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"github.com/nidhogg/minuku/internal/streams"
	"go.uber.org/zap"
)

// ErrSituationAlreadyRegistered is returned when a situation with the same
// name is already registered.
var ErrSituationAlreadyRegistered = fmt.Errorf("situation already registered")

// Registry is the part of the stream registry the Manager reads.
type Registry interface {
	Has(t record.Type) bool
	StreamFor(t record.Type) (*stream.Stream, error)
}

type registration struct {
	situation Situation
	deps      []record.Type
}

// Manager maps record types to the situations interested in them and
// evaluates those situations when the types change.
type Manager struct {
	registry   Registry
	bus        *event.Bus
	interested map[record.Type][]*registration
	byName     map[string]*registration
	order      []string
	metrics    *metrics.Metrics
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewManager creates a situation registry. m may be nil.
func NewManager(registry Registry, bus *event.Bus, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		registry:   registry,
		bus:        bus,
		interested: make(map[record.Type][]*registration),
		byName:     make(map[string]*registration),
		metrics:    m,
		logger:     logger,
	}
}

// Register adds s to the interested set of every type it depends on. If any
// of those types has no registered stream, s is added nowhere.
func (m *Manager) Register(s Situation) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("register situation: empty name")
	}
	deps := dedupe(s.DependsOn())
	if len(deps) == 0 {
		return fmt.Errorf("register situation %s: no dependencies", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("register situation %s: %w", name, ErrSituationAlreadyRegistered)
	}
	for _, t := range deps {
		if !m.registry.Has(t) {
			m.logger.Error("situation registration failed",
				zap.String("situation", name),
				zap.String("type", string(t)))
			return fmt.Errorf("register situation %s: %s: %w", name, t, streams.ErrDataRecordTypeNotFound)
		}
	}

	reg := &registration{situation: s, deps: deps}
	for _, t := range deps {
		m.interested[t] = append(m.interested[t], reg)
	}
	m.byName[name] = reg
	m.order = append(m.order, name)
	m.metrics.SetSituations(len(m.byName))

	m.logger.Info("situation registered",
		zap.String("situation", name),
		zap.Int("dependencies", len(deps)))
	return nil
}

// Unregister removes s from every interested set.
func (m *Manager) Unregister(s Situation) error {
	name := s.Name()

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("unregister situation %s: %w", name, streams.ErrStreamNotFound)
	}
	for _, t := range reg.deps {
		regs := m.interested[t]
		for i, cur := range regs {
			if cur == reg {
				regs = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(regs) == 0 {
			delete(m.interested, t)
		} else {
			m.interested[t] = regs
		}
	}
	delete(m.byName, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.metrics.SetSituations(len(m.byName))

	m.logger.Info("situation unregistered", zap.String("situation", name))
	return nil
}

// Situations returns registered situation names in registration order.
func (m *Manager) Situations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Interested returns the names of the situations interested in t, in
// registration order.
func (m *Manager) Interested(t record.Type) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	regs := m.interested[t]
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.situation.Name()
	}
	return out
}

// HandleStateChange evaluates the situations interested in the changed type.
func (m *Manager) HandleStateChange(ctx context.Context, ev event.StateChange) {
	m.dispatch(ctx, ev.RecordType, ev)
}

// HandleNoDataChange evaluates the situations interested in the silent type.
func (m *Manager) HandleNoDataChange(ctx context.Context, ev event.NoDataChange) {
	m.dispatch(ctx, ev.RecordType, ev)
}

func (m *Manager) dispatch(ctx context.Context, t record.Type, ev event.Event) {
	m.mu.RLock()
	regs := make([]*registration, len(m.interested[t]))
	copy(regs, m.interested[t])
	m.mu.RUnlock()

	if len(regs) == 0 {
		return
	}

	ctx, cycle := event.WithCycle(ctx)
	snap := m.snapshot(t, regs)

	for _, reg := range regs {
		name := reg.situation.Name()
		if !cycle.MarkEvaluated(name) {
			m.logger.Debug("situation already evaluated in cycle",
				zap.String("situation", name),
				zap.String("cycle", cycle.ID()))
			continue
		}

		action := m.evaluate(reg.situation, snap, ev)
		if action == nil {
			continue
		}
		m.logger.Info("situation fired",
			zap.String("situation", name),
			zap.String("action", action.Name),
			zap.Int("records", len(action.Records)))
		m.metrics.ActionPublished(action.Name)
		m.bus.Publish(ctx, action)
	}
}

// snapshot covers t and every dependency of the interested situations.
func (m *Manager) snapshot(t record.Type, regs []*registration) *Snapshot {
	seen := map[record.Type]bool{t: true}
	types := []record.Type{t}
	for _, reg := range regs {
		for _, d := range reg.deps {
			if !seen[d] {
				seen[d] = true
				types = append(types, d)
			}
		}
	}

	sts := make([]*stream.Stream, 0, len(types))
	for _, d := range types {
		st, err := m.registry.StreamFor(d)
		if err != nil {
			m.logger.Warn("snapshot skips missing stream",
				zap.String("type", string(d)), zap.Error(err))
			continue
		}
		sts = append(sts, st)
	}
	return NewSnapshot(sts...)
}

// evaluate runs one situation, isolating its errors and panics.
func (m *Manager) evaluate(s Situation, snap *Snapshot, ev event.Event) (action *event.Action) {
	name := s.Name()
	start := time.Now()
	result := "none"

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("situation panicked",
				zap.String("situation", name),
				zap.Error(fmt.Errorf("%v", r)))
			action = nil
			result = "error"
		}
		m.metrics.Evaluation(name, result, time.Since(start))
	}()

	action, err := s.Assert(snap, ev)
	if err != nil {
		m.logger.Warn("situation evaluation failed",
			zap.String("situation", name),
			zap.String("event", string(ev.Kind())),
			zap.Error(err))
		result = "error"
		return nil
	}
	if action != nil {
		result = "action"
	}
	return action
}

func dedupe(types []record.Type) []record.Type {
	seen := make(map[record.Type]bool, len(types))
	out := make([]record.Type, 0, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
