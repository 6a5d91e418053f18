package record

import (
	"fmt"
	"time"
)

// Type identifies a kind of record. The set of types is open: any non-empty
// string is a valid type, the constants below are the ones shipped here.
type Type string

const (
	TypeMood             Type = "mood"
	TypeLocation         Type = "location"
	TypeSemanticLocation Type = "semantic_location"
)

// ErrInvalidRecord is wrapped by every constructor validation failure.
var ErrInvalidRecord = fmt.Errorf("invalid record")

// Record is an immutable, timestamped observation of one Type.
type Record interface {
	Type() Type
	CreatedAt() time.Time
}

// Validate rejects the empty type.
func (t Type) Validate() error {
	if t == "" {
		return fmt.Errorf("%w: record type is empty", ErrInvalidRecord)
	}
	return nil
}

func (t Type) String() string { return string(t) }

// base carries the creation time shared by all concrete records.
type base struct {
	createdAt time.Time
}

func (b base) CreatedAt() time.Time { return b.createdAt }

func stamp(at time.Time) base {
	if at.IsZero() {
		at = time.Now()
	}
	return base{createdAt: at}
}
