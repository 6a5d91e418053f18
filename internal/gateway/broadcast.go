package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/situation"
	"go.uber.org/zap"
)

const defaultHistory = 100

// BroadcastRecord tracks a sent broadcast for history.
type BroadcastRecord struct {
	Message *BroadcastMessage `json:"message"`
	SentAt  time.Time         `json:"sent_at"`
	Targets []string          `json:"targets"`
	Error   string            `json:"error,omitempty"`
}

// Broadcaster turns action events into user prompts and sends them through
// the Gateway.
type Broadcaster struct {
	gateway *Gateway
	history []BroadcastRecord
	limit   int
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by the given gateway.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gw,
		limit:   defaultHistory,
		logger:  logger,
	}
}

// Attach sends a prompt for every action published on bus. The returned
// function detaches the broadcaster.
func (b *Broadcaster) Attach(bus *event.Bus) func() {
	sub := bus.SubscribeAsync(event.KindAction, func(ctx context.Context, ev event.Event) {
		a, ok := ev.(*event.Action)
		if !ok {
			return
		}
		if err := b.Send(ctx, Prompt(a)); err != nil {
			b.logger.Warn("action prompt failed",
				zap.String("action", a.Name), zap.Error(err))
		}
	})
	return sub.Close
}

// Send broadcasts a message to all or selected platforms via the gateway.
func (b *Broadcaster) Send(ctx context.Context, msg *BroadcastMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("broadcast type is required")
	}

	b.logger.Info("sending broadcast",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("action", msg.Action),
	)

	err := b.gateway.Broadcast(ctx, msg)

	targets := msg.Platforms
	if len(targets) == 0 {
		targets = b.gateway.Adapters()
	}
	rec := BroadcastRecord{Message: msg, SentAt: time.Now(), Targets: targets}
	if err != nil {
		rec.Error = err.Error()
	}

	b.mu.Lock()
	b.history = append(b.history, rec)
	if over := len(b.history) - b.limit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
	b.mu.Unlock()

	return err
}

// History returns up to limit recent broadcast records, oldest first.
func (b *Broadcaster) History(limit int) []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]BroadcastRecord, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// Prompt renders the user-facing question for an action.
func Prompt(a *event.Action) *BroadcastMessage {
	msg := &BroadcastMessage{
		Type:      BroadcastAction,
		Action:    a.Name,
		Situation: a.Situation,
		ActionID:  a.ID(),
		Records:   record.WrapAll(a.Records),
	}

	switch a.Name {
	case situation.ActionExplainMoodChanges:
		msg.Title = "Your mood changed"
		cur, prev := moodPair(a.Records)
		if cur != nil && prev != nil {
			msg.Content = fmt.Sprintf("Your mood went from %.0f to %.0f today. What happened?",
				prev.MoodLevel(), cur.MoodLevel())
		} else {
			msg.Content = "Your mood changed noticeably today. What happened?"
		}
	case situation.ActionReportMood:
		msg.Title = "How are you feeling?"
		msg.Content = "We have not heard from you in a while. Reply with /mood <mood> <energy>."
	case situation.ActionAskAboutPlace:
		msg.Title = "New place"
		place := record.Unknown
		for _, r := range a.Records {
			if sl, ok := r.(*record.SemanticLocation); ok {
				place = sl.Place()
				break
			}
		}
		msg.Content = fmt.Sprintf("You arrived at %s. What brings you here?", place)
	default:
		msg.Title = a.Name
		msg.Content = fmt.Sprintf("Situation %s fired %s.", a.Situation, a.Name)
	}
	return msg
}

// moodPair returns the first two mood records, current then previous.
func moodPair(rs []record.Record) (cur, prev *record.Mood) {
	for _, r := range rs {
		m, ok := r.(*record.Mood)
		if !ok {
			continue
		}
		if cur == nil {
			cur = m
		} else if prev == nil {
			prev = m
		}
	}
	return cur, prev
}
