package api

import (
	"context"
	"sync"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/relay"
)

const defaultActionLog = 200

// ActionLog keeps the most recent action events in memory.
type ActionLog struct {
	items []*relay.Message
	limit int
	mu    sync.RWMutex
}

// NewActionLog keeps up to limit actions. A limit below 1 means the default.
func NewActionLog(limit int) *ActionLog {
	if limit < 1 {
		limit = defaultActionLog
	}
	return &ActionLog{limit: limit}
}

// Attach records every action published on bus. The returned function
// detaches the log.
func (l *ActionLog) Attach(bus *event.Bus) func() {
	sub := bus.SubscribeAsync(event.KindAction, func(_ context.Context, ev event.Event) {
		if a, ok := ev.(*event.Action); ok {
			l.Add(a)
		}
	})
	return sub.Close
}

// Add appends a, evicting the oldest entry when full.
func (l *ActionLog) Add(a *event.Action) {
	m := relay.FromAction(a)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, m)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

// Recent returns up to n actions, newest first. n <= 0 means all.
func (l *ActionLog) Recent(n int) []*relay.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]*relay.Message, 0, n)
	for i := len(l.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.items[i])
	}
	return out
}
