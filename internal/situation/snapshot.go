package situation

import (
	"sort"

	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/stream"
)

// Snapshot is a read-only view of current and previous records, captured
// once per dispatch cycle. It is discarded when the cycle ends.
type Snapshot struct {
	pairs map[record.Type]stream.Pair
}

// NewSnapshot captures the (current, previous) pair of each stream.
func NewSnapshot(streams ...*stream.Stream) *Snapshot {
	s := &Snapshot{pairs: make(map[record.Type]stream.Pair, len(streams))}
	for _, st := range streams {
		if st == nil {
			continue
		}
		s.pairs[st.Type()] = st.Pair()
	}
	return s
}

// Current returns the most recent record of t at capture time.
func (s *Snapshot) Current(t record.Type) (record.Record, bool) {
	p, ok := s.pairs[t]
	if !ok || p.Current == nil {
		return nil, false
	}
	return p.Current, true
}

// Previous returns the record preceding Current(t) at capture time.
func (s *Snapshot) Previous(t record.Type) (record.Record, bool) {
	p, ok := s.pairs[t]
	if !ok || p.Previous == nil {
		return nil, false
	}
	return p.Previous, true
}

// Types lists the record types covered by the snapshot, sorted.
func (s *Snapshot) Types() []record.Type {
	out := make([]record.Type, 0, len(s.pairs))
	for t := range s.pairs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CurrentAs returns Current(t) as a T. ok is false when absent or of another
// concrete type.
func CurrentAs[T record.Record](s *Snapshot, t record.Type) (T, bool) {
	var zero T
	r, ok := s.Current(t)
	if !ok {
		return zero, false
	}
	v, ok := r.(T)
	return v, ok
}

// PreviousAs is the Previous counterpart of CurrentAs.
func PreviousAs[T record.Record](s *Snapshot, t record.Type) (T, bool) {
	var zero T
	r, ok := s.Previous(t)
	if !ok {
		return zero, false
	}
	v, ok := r.(T)
	return v, ok
}
