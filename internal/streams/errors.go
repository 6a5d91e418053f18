package streams

import (
	"fmt"

	"github.com/nidhogg/minuku/internal/record"
)

var (
	// ErrStreamNotFound is returned when an operation names a record type, or
	// a stream/generator pair, that is not registered.
	ErrStreamNotFound = fmt.Errorf("stream not found")
	// ErrStreamAlreadyExists is returned when a record type already has a
	// registered stream.
	ErrStreamAlreadyExists = fmt.Errorf("stream already exists")
	// ErrDataRecordTypeNotFound is returned when a generator or situation
	// depends on a record type that has no registered stream.
	ErrDataRecordTypeNotFound = fmt.Errorf("data record type not found")
	// ErrCyclicDependency is returned when a cascade of pushes comes back to
	// a record type already being pushed in the same dispatch cycle.
	ErrCyclicDependency = fmt.Errorf("cyclic stream dependency")
	// ErrOutOfOrder is returned when a record predates the current record
	// of its stream. It wraps record.ErrInvalidRecord.
	ErrOutOfOrder = fmt.Errorf("%w: older than current record", record.ErrInvalidRecord)
)
