package event

import (
	"context"
	"sync"
)

type delivery struct {
	ctx context.Context
	ev  Event
}

// queue is an unbounded FIFO feeding one asynchronous subscriber. Publishers
// never block on it.
type queue struct {
	items  []delivery
	closed bool
	notify chan struct{}
	mu     sync.Mutex
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(d delivery) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// run delivers queued items in order until the queue is closed and drained.
func (q *queue) run(fn func(delivery)) {
	for range q.notify {
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			d := q.items[0]
			q.items[0] = delivery{}
			q.items = q.items[1:]
			q.mu.Unlock()
			fn(d)
		}
	}
}
