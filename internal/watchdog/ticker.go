package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
)

// Listener receives ticks.
type Listener interface {
	OnTick(now time.Time)
}

// Ticker calls its listeners every interval until stopped.
type Ticker struct {
	clock     clock.Clock
	interval  time.Duration
	listeners []Listener
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewTicker creates a ticker on clk. A nil clk means the wall clock.
func NewTicker(clk clock.Clock, interval time.Duration, logger *zap.Logger) *Ticker {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Ticker{
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// AddListener registers a tick listener.
func (t *Ticker) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Start begins the tick loop in a background goroutine.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
	t.logger.Info("watchdog ticker started", zap.Duration("interval", t.interval))
}

// Stop halts the tick loop and waits for it to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.logger.Info("watchdog ticker stopped")
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(t.interval):
			t.tick()
		}
	}
}

func (t *Ticker) tick() {
	now := t.clock.Now()
	t.mu.Lock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(now)
	}
}
