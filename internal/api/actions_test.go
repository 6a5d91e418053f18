package api

import (
	"context"
	"testing"

	"github.com/nidhogg/minuku/internal/event"
	"go.uber.org/zap"
)

func TestActionLogEvictsOldest(t *testing.T) {
	l := NewActionLog(2)
	for _, name := range []string{"A", "B", "C"} {
		l.Add(event.NewAction(name, "s"))
	}
	got := l.Recent(0)
	if len(got) != 2 || got[0].Name != "C" || got[1].Name != "B" {
		t.Fatalf("Recent = %v, %v", got[0].Name, got[1].Name)
	}
	if one := l.Recent(1); len(one) != 1 || one[0].Name != "C" {
		t.Fatalf("Recent(1) = %+v", one)
	}
}

func TestActionLogAttach(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	l := NewActionLog(0)
	detach := l.Attach(bus)
	bus.Publish(context.Background(), event.NewAction("REPORT_MOOD", "mood_reminder"))
	detach()
	bus.Close()

	if got := l.Recent(0); len(got) != 1 || got[0].Situation != "mood_reminder" {
		t.Fatalf("Recent = %+v", got)
	}
}
