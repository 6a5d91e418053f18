package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/minuku/internal/record"
)

// Kind names the runtime type of an event; subscribers declare interest by Kind.
type Kind string

const (
	KindStateChange     Kind = "state_change"
	KindNoDataChange    Kind = "no_data_change"
	KindIsDataExpected  Kind = "is_data_expected"
	KindDataExpectation Kind = "data_expectation"
	KindAction          Kind = "action"
)

// Event is an immutable message carried by the Bus.
type Event interface {
	Kind() Kind
	ID() string
	OccurredAt() time.Time
}

type meta struct {
	id string
	at time.Time
}

func newMeta() meta {
	return meta{id: uuid.New().String(), at: time.Now()}
}

func (m meta) ID() string            { return m.id }
func (m meta) OccurredAt() time.Time { return m.at }

// StateChange announces that the stream for RecordType received Record.
type StateChange struct {
	meta
	RecordType record.Type
	Record     record.Record
	Cycle      string
}

// NewStateChange builds a state-change event for r inside the given cycle.
func NewStateChange(r record.Record, cycle string) StateChange {
	return StateChange{meta: newMeta(), RecordType: r.Type(), Record: r, Cycle: cycle}
}

func (StateChange) Kind() Kind { return KindStateChange }

// NoDataChange reports that no record of RecordType arrived for Elapsed.
// LastSeen is zero when the stream never received a record.
type NoDataChange struct {
	meta
	RecordType record.Type
	Elapsed    time.Duration
	LastSeen   time.Time
}

func NewNoDataChange(t record.Type, elapsed time.Duration, lastSeen time.Time) NoDataChange {
	return NoDataChange{meta: newMeta(), RecordType: t, Elapsed: elapsed, LastSeen: lastSeen}
}

func (NoDataChange) Kind() Kind { return KindNoDataChange }

// IsDataExpected asks whether the generator of RecordType should currently be
// producing data. The answer is a DataExpectation carrying the query's ID.
type IsDataExpected struct {
	meta
	RecordType record.Type
}

func NewIsDataExpected(t record.Type) IsDataExpected {
	return IsDataExpected{meta: newMeta(), RecordType: t}
}

func (IsDataExpected) Kind() Kind { return KindIsDataExpected }

// DataExpectation answers an IsDataExpected query.
type DataExpectation struct {
	meta
	RecordType record.Type
	QueryID    string
	Expected   bool
}

func NewDataExpectation(q IsDataExpected, expected bool) DataExpectation {
	return DataExpectation{meta: newMeta(), RecordType: q.RecordType, QueryID: q.ID(), Expected: expected}
}

func (DataExpectation) Kind() Kind { return KindDataExpectation }

// Action asks downstream consumers to react. Records are the observations
// that justified it, in the order the situation supplied them. Consumers must
// not modify them.
type Action struct {
	meta
	Name      string
	Situation string
	Records   []record.Record
}

// NewAction copies records so later changes to the caller's slice are not
// observed by consumers.
func NewAction(name, situation string, records ...record.Record) *Action {
	rs := make([]record.Record, len(records))
	copy(rs, records)
	return &Action{meta: newMeta(), Name: name, Situation: situation, Records: rs}
}

func (*Action) Kind() Kind { return KindAction }
