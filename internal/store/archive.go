package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
	"go.uber.org/zap"
)

// ActionRow is an archived action event.
type ActionRow struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Situation  string            `json:"situation"`
	Records    []record.Envelope `json:"records"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RecordRow is an archived record.
type RecordRow struct {
	Cycle  string          `json:"cycle"`
	Record record.Envelope `json:"record"`
}

// SaveRecord archives one record pushed in the given dispatch cycle.
func (s *Store) SaveRecord(ctx context.Context, r record.Record, cycle string) error {
	env := record.Wrap(r)
	payload, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO records (id, record_type, cycle_id, payload, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)`,
		string(env.Type), cycle, payload, env.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save record %s: %w", env.Type, err)
	}
	return nil
}

// SaveAction archives an action event. Saving the same action twice is a
// no-op.
func (s *Store) SaveAction(ctx context.Context, a *event.Action) error {
	recs, err := json.Marshal(record.WrapAll(a.Records))
	if err != nil {
		return fmt.Errorf("marshal action records: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO actions (id, name, situation, records, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		a.ID(), a.Name, a.Situation, recs, a.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("save action %s: %w", a.Name, err)
	}
	return nil
}

// RecentActions returns the latest archived actions, newest first.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]ActionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name, situation, records, occurred_at
		FROM actions
		ORDER BY occurred_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRow
	for rows.Next() {
		var a ActionRow
		var recs []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Situation, &recs, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if err := json.Unmarshal(recs, &a.Records); err != nil {
			return nil, fmt.Errorf("decode action %s records: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentRecords returns the latest archived records of type t, newest first.
func (s *Store) RecentRecords(ctx context.Context, t record.Type, limit int) ([]RecordRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT cycle_id, payload, created_at
		FROM records
		WHERE record_type = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(t), limit)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		row := RecordRow{Record: record.Envelope{Type: t}}
		var payload []byte
		if err := rows.Scan(&row.Cycle, &payload, &row.Record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Record.Data); err != nil {
			return nil, fmt.Errorf("decode record payload: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Attach subscribes the archive to state-change and action events. The
// returned function detaches it.
func (s *Store) Attach(bus *event.Bus) func() {
	records := bus.SubscribeAsync(event.KindStateChange, func(ctx context.Context, ev event.Event) {
		sc, ok := ev.(event.StateChange)
		if !ok {
			return
		}
		if err := s.SaveRecord(ctx, sc.Record, sc.Cycle); err != nil {
			s.logger.Warn("archive record failed", zap.Error(err))
		}
	})
	actions := bus.SubscribeAsync(event.KindAction, func(ctx context.Context, ev event.Event) {
		a, ok := ev.(*event.Action)
		if !ok {
			return
		}
		if err := s.SaveAction(ctx, a); err != nil {
			s.logger.Warn("archive action failed", zap.String("action", a.Name), zap.Error(err))
		}
	})
	return func() {
		records.Close()
		actions.Close()
	}
}
