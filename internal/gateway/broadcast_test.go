package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/situation"
	"go.uber.org/zap"
)

func TestPrompt(t *testing.T) {
	cur, _ := record.NewMood(80, 52, time.Time{})
	prev, _ := record.NewMood(50, 50, time.Time{})
	home := record.NewSemanticLocation("home", nil)

	tests := []struct {
		action *event.Action
		title  string
		want   string
	}{
		{
			event.NewAction(situation.ActionExplainMoodChanges, "mood_annotation_expected", cur, prev),
			"Your mood changed",
			"Your mood went from 50 to 80 today. What happened?",
		},
		{
			event.NewAction(situation.ActionExplainMoodChanges, "mood_annotation_expected"),
			"Your mood changed",
			"Your mood changed noticeably today. What happened?",
		},
		{
			event.NewAction(situation.ActionReportMood, "mood_reminder"),
			"How are you feeling?",
			"Reply with /mood",
		},
		{
			event.NewAction(situation.ActionAskAboutPlace, "place_changed", home),
			"New place",
			"You arrived at home.",
		},
		{
			event.NewAction("CHARGE_PHONE", "battery_low"),
			"CHARGE_PHONE",
			"Situation battery_low fired CHARGE_PHONE.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.action.Name, func(t *testing.T) {
			msg := Prompt(tt.action)
			if msg.Type != BroadcastAction || msg.Action != tt.action.Name || msg.ActionID != tt.action.ID() {
				t.Fatalf("msg = %+v", msg)
			}
			if msg.Title != tt.title || !strings.Contains(msg.Content, tt.want) {
				t.Fatalf("prompt = %q / %q", msg.Title, msg.Content)
			}
			if len(msg.Records) != len(tt.action.Records) {
				t.Fatalf("prompt carries %d records, action %d", len(msg.Records), len(tt.action.Records))
			}
		})
	}
}

func TestBroadcasterHistory(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(&fakeAdapter{platform: "slack"})
	b := NewBroadcaster(gw, zap.NewNop())
	b.limit = 3

	if err := b.Send(context.Background(), &BroadcastMessage{Title: "untyped"}); err == nil {
		t.Fatal("broadcast without type accepted")
	}
	for _, title := range []string{"a", "b", "c", "d"} {
		if err := b.Send(context.Background(), &BroadcastMessage{Type: BroadcastNotice, Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	h := b.History(0)
	if len(h) != 3 || h[0].Message.Title != "b" || h[2].Message.Title != "d" {
		t.Fatalf("history = %+v", h)
	}
	if len(h[0].Targets) != 1 || h[0].Targets[0] != "slack" {
		t.Fatalf("targets = %v", h[0].Targets)
	}
	if last := b.History(1); len(last) != 1 || last[0].Message.Title != "d" {
		t.Fatalf("History(1) = %+v", last)
	}
}

func TestBroadcasterAttach(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	a := &fakeAdapter{platform: "discord"}
	gw.Register(a)
	b := NewBroadcaster(gw, zap.NewNop())

	bus := event.NewBus(zap.NewNop())
	detach := b.Attach(bus)
	bus.Publish(context.Background(), event.NewAction(situation.ActionReportMood, "mood_reminder"))
	detach()
	bus.Close()

	if a.broadcastCount() != 1 {
		t.Fatalf("broadcasts = %d", a.broadcastCount())
	}
	if got := a.broadcasts[0].Action; got != situation.ActionReportMood {
		t.Fatalf("action = %s", got)
	}
}
