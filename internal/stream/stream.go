package stream

import (
	"sync"
	"sync/atomic"

	"github.com/nidhogg/minuku/internal/record"
)

// Kind classifies a stream by where its records come from.
type Kind string

const (
	FromDevice Kind = "device"
	Derived    Kind = "derived"
)

// Pair is the (current, previous) view of a stream. Either may be nil.
type Pair struct {
	Current  record.Record
	Previous record.Record
}

// Stream is a bounded, chronological history of records of one type. When
// full, the oldest record is evicted.
//
// A Stream does not check record types; the registry guarantees that only
// records of Type() are pushed.
type Stream struct {
	recordType record.Type
	kind       Kind
	items      []record.Record
	capacity   int
	head       int // next write position
	size       int
	pair       atomic.Pointer[Pair]
	mu         sync.RWMutex
}

// New creates a stream. A capacity below 1 is raised to 1.
func New(t record.Type, kind Kind, capacity int) *Stream {
	if capacity < 1 {
		capacity = 1
	}
	s := &Stream{
		recordType: t,
		kind:       kind,
		items:      make([]record.Record, capacity),
		capacity:   capacity,
	}
	s.pair.Store(&Pair{})
	return s
}

func (s *Stream) Type() record.Type { return s.recordType }
func (s *Stream) Kind() Kind        { return s.kind }
func (s *Stream) Cap() int          { return s.capacity }

// Len returns the number of buffered records.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Push appends r, evicting the oldest record when the stream is full.
func (s *Stream) Push(r record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[s.head] = r
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}

	// The previous record is still readable after eviction of the oldest
	// slot, even with capacity 1.
	prev := s.pair.Load().Current
	s.pair.Store(&Pair{Current: r, Previous: prev})
}

// Current returns the most recent record.
func (s *Stream) Current() (record.Record, bool) {
	p := s.pair.Load()
	return p.Current, p.Current != nil
}

// Previous returns the record pushed immediately before Current.
func (s *Stream) Previous() (record.Record, bool) {
	p := s.pair.Load()
	return p.Previous, p.Previous != nil
}

// Pair returns current and previous as one consistent read.
func (s *Stream) Pair() Pair {
	return *s.pair.Load()
}

// History returns up to n records, most recent first.
func (s *Stream) History(n int) []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.size {
		n = s.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]record.Record, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		out[i] = s.items[idx]
	}
	return out
}

// All returns every buffered record in chronological order.
func (s *Stream) All() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, s.size)
	start := (s.head - s.size + s.capacity) % s.capacity
	for i := 0; i < s.size; i++ {
		out[i] = s.items[(start+i)%s.capacity]
	}
	return out
}
