package situation

import (
	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
)

// Situation is a rule evaluated against a snapshot whenever one of the record
// types it depends on changes.
//
// Assert must not modify the snapshot or its records. It returns nil, nil
// when there is nothing to do; an error is logged and does not affect other
// situations evaluated in the same cycle.
type Situation interface {
	Name() string
	DependsOn() []record.Type
	Assert(snap *Snapshot, ev event.Event) (*event.Action, error)
}
