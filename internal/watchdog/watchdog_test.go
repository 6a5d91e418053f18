package watchdog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	streams  map[record.Type]*stream.Stream
	inactive map[record.Type]bool
}

func (f *fakeSource) StreamFor(t record.Type) (*stream.Stream, error) {
	s, ok := f.streams[t]
	if !ok {
		return nil, fmt.Errorf("no stream %s", t)
	}
	return s, nil
}

func (f *fakeSource) IsDataExpected(t record.Type) (bool, error) {
	return !f.inactive[t], nil
}

type silenceLog struct {
	mu     sync.Mutex
	events []event.NoDataChange
}

func (l *silenceLog) handle(_ context.Context, ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.(event.NoDataChange))
}

func (l *silenceLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func setup(t *testing.T, started time.Time) (*Watchdog, *fakeSource, *silenceLog) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	t.Cleanup(bus.Close)
	log := &silenceLog{}
	bus.Subscribe(event.KindNoDataChange, log.handle)

	src := &fakeSource{
		streams: map[record.Type]*stream.Stream{
			record.TypeMood: stream.New(record.TypeMood, stream.FromDevice, 5),
		},
		inactive: map[record.Type]bool{},
	}
	w := New(src, bus, map[record.Type]time.Duration{
		record.TypeMood: time.Hour,
		"missing":       time.Hour,
	}, started, zap.NewNop())
	return w, src, log
}

func TestCheckReportsOncePerSilence(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	w, src, log := setup(t, start)
	ctx := context.Background()

	if n := w.Check(ctx, start.Add(30*time.Minute)); n != 0 {
		t.Fatalf("before threshold: %d events", n)
	}
	if n := w.Check(ctx, start.Add(time.Hour)); n != 1 {
		t.Fatalf("at threshold: %d events", n)
	}
	ev := log.events[0]
	if ev.RecordType != record.TypeMood || ev.Elapsed != time.Hour || !ev.LastSeen.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
	if n := w.Check(ctx, start.Add(3*time.Hour)); n != 0 {
		t.Fatalf("same silence reported again: %d events", n)
	}

	// A new record re-arms the watchdog.
	at := start.Add(4 * time.Hour)
	m, _ := record.NewMood(50, 50, at)
	src.streams[record.TypeMood].Push(m)
	if n := w.Check(ctx, at.Add(30*time.Minute)); n != 0 {
		t.Fatalf("fresh record: %d events", n)
	}
	if n := w.Check(ctx, at.Add(2*time.Hour)); n != 1 {
		t.Fatalf("second silence: %d events", n)
	}
	if got := log.events[1]; !got.LastSeen.Equal(at) || got.Elapsed != 2*time.Hour {
		t.Fatalf("second event = %+v", got)
	}
}

func TestCheckSkipsInactiveStreams(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	w, src, log := setup(t, start)
	src.inactive[record.TypeMood] = true

	if n := w.Check(context.Background(), start.Add(5*time.Hour)); n != 0 {
		t.Fatalf("inactive stream reported: %d", n)
	}
	if log.len() != 0 {
		t.Fatal("events published")
	}
}

func TestTickerDrivesWatchdog(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	clk := testclock.NewClock(start)
	w, _, log := setup(t, start)

	ticker := NewTicker(clk, 30*time.Minute, zap.NewNop())
	ticker.AddListener(w)
	ticker.Start()
	defer ticker.Stop()

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(30*time.Minute, time.Second, 1); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for log.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if log.len() != 1 {
		t.Fatalf("got %d events after an hour of silence, want 1", log.len())
	}
}

func TestTickerStopIsIdempotent(t *testing.T) {
	ticker := NewTicker(testclock.NewClock(time.Now()), time.Minute, zap.NewNop())
	ticker.Start()
	ticker.Start()
	ticker.Stop()
	ticker.Stop()
}
