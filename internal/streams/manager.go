package streams

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/metrics"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Relay receives the events the Manager forwards to situation evaluation.
type Relay interface {
	HandleStateChange(ctx context.Context, ev event.StateChange)
	HandleNoDataChange(ctx context.Context, ev event.NoDataChange)
}

// Stats is the per-type bookkeeping kept by the Manager.
type Stats struct {
	RecordType  record.Type   `json:"record_type"`
	Kind        stream.Kind   `json:"kind"`
	Pushes      int64         `json:"pushes"`
	LastPush    time.Time     `json:"last_push,omitempty"`
	NoDataCount int64         `json:"no_data_count"`
	LastSilence time.Duration `json:"last_silence,omitempty"`
}

type entry struct {
	stream    *stream.Stream
	generator stream.Generator
	subs      []*event.Subscription
	stats     Stats
	statsMu   sync.Mutex
	// lock serialises push and dispatch for one record type.
	lock sync.Mutex
}

// Manager is the registry of streams keyed by record type.
type Manager struct {
	entries map[record.Type]*entry
	order   []record.Type
	relay   Relay
	bus     *event.Bus
	busSubs []*event.Subscription
	metrics *metrics.Metrics
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a stream registry and subscribes it to the bus for
// state-change, no-data-change and is-data-expected events. m may be nil.
func NewManager(bus *event.Bus, m *metrics.Metrics, logger *zap.Logger) *Manager {
	mgr := &Manager{
		entries: make(map[record.Type]*entry),
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
	mgr.busSubs = []*event.Subscription{
		bus.Subscribe(event.KindStateChange, mgr.handleStateChange),
		bus.Subscribe(event.KindNoDataChange, mgr.handleNoDataChange),
		bus.Subscribe(event.KindIsDataExpected, mgr.handleIsDataExpected),
	}
	return mgr
}

// SetRelay sets where state-change and no-data events are forwarded.
func (m *Manager) SetRelay(r Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relay = r
}

// Register adds s as the stream for t, produced by g.
func (m *Manager) Register(s *stream.Stream, t record.Type, g stream.Generator) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("register stream: %w", err)
	}
	if s == nil || g == nil {
		return fmt.Errorf("register stream %s: nil stream or generator", t)
	}
	if s.Type() != t || g.Type() != t {
		return fmt.Errorf("register stream %s: stream holds %s, generator produces %s", t, s.Type(), g.Type())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[t]; ok {
		return fmt.Errorf("register stream %s: %w", t, ErrStreamAlreadyExists)
	}
	for _, dep := range g.DependsOn() {
		if _, ok := m.entries[dep]; !ok {
			return fmt.Errorf("register stream %s: dependency %s: %w", t, dep, ErrDataRecordTypeNotFound)
		}
	}

	e := &entry{
		stream:    s,
		generator: g,
		stats:     Stats{RecordType: t, Kind: s.Kind()},
	}
	if dh, ok := g.(stream.DependencyHandler); ok {
		e.subs = m.subscribeDependencies(t, g.DependsOn(), dh)
	}
	m.entries[t] = e
	m.order = append(m.order, t)
	m.metrics.SetStreams(len(m.entries))

	m.logger.Info("stream registered",
		zap.String("type", string(t)),
		zap.String("kind", string(s.Kind())),
		zap.Int("capacity", s.Cap()),
		zap.Int("dependencies", len(g.DependsOn())))
	return nil
}

func (m *Manager) subscribeDependencies(t record.Type, deps []record.Type, dh stream.DependencyHandler) []*event.Subscription {
	if len(deps) == 0 {
		return nil
	}
	wanted := make(map[record.Type]bool, len(deps))
	for _, d := range deps {
		wanted[d] = true
	}
	sub := m.bus.Subscribe(event.KindStateChange, func(ctx context.Context, ev event.Event) {
		sc, ok := ev.(event.StateChange)
		if !ok || !wanted[sc.RecordType] {
			return
		}
		if err := dh.OnDependencyChange(ctx, sc); err != nil {
			m.logger.Warn("derived generator failed",
				zap.String("type", string(t)),
				zap.String("dependency", string(sc.RecordType)),
				zap.Error(err))
		}
	})
	return []*event.Subscription{sub}
}

// Unregister removes s and g. The pair must be exactly the one registered.
func (m *Manager) Unregister(s *stream.Stream, g stream.Generator) error {
	if s == nil || g == nil {
		return fmt.Errorf("unregister stream: %w", ErrStreamNotFound)
	}

	m.mu.Lock()
	t := s.Type()
	e, ok := m.entries[t]
	if !ok || e.stream != s || e.generator != g {
		m.mu.Unlock()
		return fmt.Errorf("unregister stream %s: %w", t, ErrStreamNotFound)
	}
	delete(m.entries, t)
	for i, cur := range m.order {
		if cur == t {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.metrics.SetStreams(len(m.entries))
	m.mu.Unlock()

	for _, sub := range e.subs {
		sub.Close()
	}
	m.logger.Info("stream unregistered", zap.String("type", string(t)))
	return nil
}

// StreamFor returns the stream registered for t.
func (m *Manager) StreamFor(t record.Type) (*stream.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[t]
	if !ok {
		return nil, fmt.Errorf("stream %s: %w", t, ErrStreamNotFound)
	}
	return e.stream, nil
}

// GeneratorFor returns the generator registered for t.
func (m *Manager) GeneratorFor(t record.Type) (stream.Generator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[t]
	if !ok {
		return nil, fmt.Errorf("generator %s: %w", t, ErrStreamNotFound)
	}
	return e.generator, nil
}

// Has reports whether t has a registered stream.
func (m *Manager) Has(t record.Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[t]
	return ok
}

// AllStreams returns every registered stream in registration order.
func (m *Manager) AllStreams() []*stream.Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*stream.Stream, 0, len(m.order))
	for _, t := range m.order {
		out = append(out, m.entries[t].stream)
	}
	return out
}

// Streams returns the registered streams of one kind in registration order.
func (m *Manager) Streams(kind stream.Kind) []*stream.Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*stream.Stream
	for _, t := range m.order {
		if s := m.entries[t].stream; s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

// Stats returns bookkeeping for every registered type in registration order.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.order))
	for _, t := range m.order {
		e := m.entries[t]
		e.statsMu.Lock()
		out = append(out, e.stats)
		e.statsMu.Unlock()
	}
	return out
}

// Push stores r in the stream for its type and runs the dispatch cycle it
// triggers. The type stays locked until every synchronous subscriber,
// situation evaluation included, has finished, so no other push can shift
// current/previous underneath an evaluation. A record older than the
// stream's current one is rejected with ErrOutOfOrder.
func (m *Manager) Push(ctx context.Context, r record.Record) error {
	if r == nil {
		return fmt.Errorf("push: nil record")
	}
	t := r.Type()

	m.mu.RLock()
	e, ok := m.entries[t]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("push %s: %w", t, ErrStreamNotFound)
	}

	ctx, cycle := event.WithCycle(ctx)
	if !cycle.Hold(t) {
		return fmt.Errorf("push %s: %w", t, ErrCyclicDependency)
	}
	defer cycle.Release(t)

	e.lock.Lock()
	defer e.lock.Unlock()

	m.mu.RLock()
	registered := m.entries[t] == e
	m.mu.RUnlock()
	if !registered {
		return fmt.Errorf("push %s: %w", t, ErrStreamNotFound)
	}
	if cur, ok := e.stream.Current(); ok && r.CreatedAt().Before(cur.CreatedAt()) {
		return fmt.Errorf("push %s at %s: %w", t, r.CreatedAt().Format(time.RFC3339), ErrOutOfOrder)
	}

	e.stream.Push(r)
	e.statsMu.Lock()
	e.stats.Pushes++
	e.stats.LastPush = r.CreatedAt()
	e.statsMu.Unlock()
	m.metrics.RecordPushed(string(t))

	m.logger.Debug("record pushed",
		zap.String("type", string(t)),
		zap.String("cycle", cycle.ID()),
		zap.Time("created_at", r.CreatedAt()))

	m.bus.Publish(ctx, event.NewStateChange(r, cycle.ID()))
	return nil
}

// IsDataExpected reports whether the generator for t should currently be
// producing data.
func (m *Manager) IsDataExpected(t record.Type) (bool, error) {
	g, err := m.GeneratorFor(t)
	if err != nil {
		return false, err
	}
	if ar, ok := g.(stream.ActivityReporter); ok {
		return ar.Active(), nil
	}
	return true, nil
}

// Close releases the Manager's bus subscriptions and those of every
// registered derived generator.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.busSubs
	m.busSubs = nil
	for _, e := range m.entries {
		subs = append(subs, e.subs...)
		e.subs = nil
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (m *Manager) currentRelay() Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relay
}

func (m *Manager) handleStateChange(ctx context.Context, ev event.Event) {
	sc, ok := ev.(event.StateChange)
	if !ok {
		return
	}
	if r := m.currentRelay(); r != nil {
		r.HandleStateChange(ctx, sc)
	}
}

func (m *Manager) handleNoDataChange(ctx context.Context, ev event.Event) {
	nd, ok := ev.(event.NoDataChange)
	if !ok {
		return
	}

	m.mu.RLock()
	e, registered := m.entries[nd.RecordType]
	m.mu.RUnlock()
	if !registered {
		m.logger.Debug("no-data event for unregistered type",
			zap.String("type", string(nd.RecordType)))
		return
	}

	e.statsMu.Lock()
	e.stats.NoDataCount++
	e.stats.LastSilence = nd.Elapsed
	e.statsMu.Unlock()
	m.metrics.NoData(string(nd.RecordType))

	m.logger.Info("no data",
		zap.String("type", string(nd.RecordType)),
		zap.Duration("elapsed", nd.Elapsed))

	if r := m.currentRelay(); r != nil {
		r.HandleNoDataChange(ctx, nd)
	}
}

func (m *Manager) handleIsDataExpected(ctx context.Context, ev event.Event) {
	q, ok := ev.(event.IsDataExpected)
	if !ok {
		return
	}
	expected, err := m.IsDataExpected(q.RecordType)
	if err != nil {
		m.logger.Debug("is-data-expected for unregistered type",
			zap.String("type", string(q.RecordType)))
	}
	m.bus.Publish(ctx, event.NewDataExpectation(q, expected))
}
