package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/zap"
)

// Source is the part of the stream manager the watchdog reads.
type Source interface {
	StreamFor(t record.Type) (*stream.Stream, error)
	IsDataExpected(t record.Type) (bool, error)
}

// Watchdog publishes a NoDataChange event when a stream stays silent longer
// than its threshold. It reports once per silent period and re-arms when a
// new record arrives.
type Watchdog struct {
	source     Source
	bus        *event.Bus
	thresholds map[record.Type]time.Duration
	started    time.Time
	reported   map[record.Type]time.Time // type -> last record time already reported
	mu         sync.Mutex
	logger     *zap.Logger
}

// New creates a watchdog. started is the reference time for streams that
// have never received a record.
func New(source Source, bus *event.Bus, thresholds map[record.Type]time.Duration, started time.Time, logger *zap.Logger) *Watchdog {
	th := make(map[record.Type]time.Duration, len(thresholds))
	for t, d := range thresholds {
		th[t] = d
	}
	return &Watchdog{
		source:     source,
		bus:        bus,
		thresholds: th,
		started:    started,
		reported:   make(map[record.Type]time.Time),
		logger:     logger,
	}
}

// OnTick implements Listener.
func (w *Watchdog) OnTick(now time.Time) {
	w.Check(context.Background(), now)
}

// Check compares every watched stream against its threshold at now and
// returns the number of NoDataChange events published.
func (w *Watchdog) Check(ctx context.Context, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	published := 0
	for t, threshold := range w.thresholds {
		s, err := w.source.StreamFor(t)
		if err != nil {
			continue
		}
		if expected, err := w.source.IsDataExpected(t); err != nil || !expected {
			continue
		}

		last := w.started
		var lastSeen time.Time
		if cur, ok := s.Current(); ok {
			last = cur.CreatedAt()
			lastSeen = last
		}
		elapsed := now.Sub(last)
		if elapsed < threshold {
			continue
		}
		if rep, ok := w.reported[t]; ok && rep.Equal(lastSeen) {
			continue
		}
		w.reported[t] = lastSeen

		w.logger.Debug("stream silent",
			zap.String("type", string(t)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
		w.bus.Publish(ctx, event.NewNoDataChange(t, elapsed, lastSeen))
		published++
	}
	return published
}
