package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis stream action events are mirrored into.
const DefaultStream = "minuku:actions"

// Message is an action event as carried over Redis.
type Message struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Situation  string            `json:"situation"`
	Records    []record.Envelope `json:"records"`
	OccurredAt time.Time         `json:"occurred_at"`
	// StreamID is the Redis entry ID, set on received messages only.
	StreamID string `json:"-"`
}

// FromAction converts an action event for the wire.
func FromAction(a *event.Action) *Message {
	return &Message{
		ID:         a.ID(),
		Name:       a.Name,
		Situation:  a.Situation,
		Records:    record.WrapAll(a.Records),
		OccurredAt: a.OccurredAt(),
	}
}

// Relay mirrors action events into a Redis stream so out-of-process
// consumers can react to them.
type Relay struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// New connects to redisURL. An empty stream name means DefaultStream.
// maxLen caps the Redis stream length (approximately); 0 leaves it unbounded.
func New(ctx context.Context, redisURL, stream string, maxLen int64, logger *zap.Logger) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Relay{rdb: rdb, stream: stream, maxLen: maxLen, logger: logger}, nil
}

// Publish appends msg to the stream.
func (r *Relay) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"action": msg.Name,
			"data":   string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if _, err := r.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.stream, err)
	}

	r.logger.Debug("relayed action",
		zap.String("action", msg.Name),
		zap.String("situation", msg.Situation),
		zap.String("id", msg.ID))
	return nil
}

// Subscribe reads actions appended after the call. Cancel ctx to stop; the
// returned channel is closed afterwards.
func (r *Relay) Subscribe(ctx context.Context) <-chan *Message {
	ch := make(chan *Message, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := r.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{r.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					r.logger.Warn("relay read failed", zap.Error(err))
				}
				continue
			}

			for _, res := range results {
				for _, xm := range res.Messages {
					lastID = xm.ID
					data, ok := xm.Values["data"].(string)
					if !ok {
						continue
					}
					var m Message
					if err := json.Unmarshal([]byte(data), &m); err != nil {
						r.logger.Warn("relay decode failed", zap.String("entry", xm.ID), zap.Error(err))
						continue
					}
					m.StreamID = xm.ID
					select {
					case ch <- &m:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Attach mirrors every action published on bus. The returned function
// detaches the relay.
func (r *Relay) Attach(bus *event.Bus) func() {
	sub := bus.SubscribeAsync(event.KindAction, func(ctx context.Context, ev event.Event) {
		a, ok := ev.(*event.Action)
		if !ok {
			return
		}
		if err := r.Publish(ctx, FromAction(a)); err != nil {
			r.logger.Warn("relay publish failed", zap.String("action", a.Name), zap.Error(err))
		}
	})
	return sub.Close
}

// Close shuts down the Redis connection.
func (r *Relay) Close() error {
	return r.rdb.Close()
}
