package event

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler receives events of the kind it subscribed to.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process typed publish/subscribe transport.
//
// Synchronous subscribers run in the publisher's goroutine, in subscription
// order. Asynchronous subscribers each own a goroutine and an ordered queue,
// so delivery to one subscriber preserves publish order.
type Bus struct {
	subs   map[Kind][]*Subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[Kind][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a synchronous handler for kind.
func (b *Bus) Subscribe(kind Kind, h Handler) *Subscription {
	return b.add(kind, h, nil)
}

// SubscribeAsync registers a handler that runs on its own goroutine.
func (b *Bus) SubscribeAsync(kind Kind, h Handler) *Subscription {
	q := newQueue()
	s := b.add(kind, h, q)
	if s.bus == nil {
		return s
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		q.run(func(d delivery) { s.deliver(d.ctx, d.ev) })
	}()
	return s
}

func (b *Bus) add(kind Kind, h Handler, q *queue) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{id: b.nextID, kind: kind, handler: h, queue: q}
	if b.closed {
		b.logger.Warn("subscribe on closed bus", zap.String("kind", string(kind)))
		if q != nil {
			q.close()
		}
		return s
	}
	s.bus = b
	b.subs[kind] = append(b.subs[kind], s)
	return s
}

// Publish delivers ev to every subscriber of its kind.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Warn("publish on closed bus dropped",
			zap.String("kind", string(ev.Kind())),
			zap.String("event", ev.ID()))
		return
	}
	subs := make([]*Subscription, len(b.subs[ev.Kind()]))
	copy(subs, b.subs[ev.Kind()])
	b.mu.RUnlock()

	for _, s := range subs {
		if s.queue != nil {
			// Async handlers outlive the publisher's request and its cycle.
			s.queue.push(delivery{ctx: detachCycle(context.WithoutCancel(ctx)), ev: ev})
			continue
		}
		s.deliver(ctx, ev)
	}
}

// Subscribers returns the number of live subscriptions for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Close unsubscribes everyone and waits for asynchronous subscribers to drain
// their queues.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			if s.queue != nil {
				s.queue.close()
			}
		}
	}
	b.subs = make(map[Kind][]*Subscription)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[s.kind]
	for i, cur := range subs {
		if cur.id == s.id {
			b.subs[s.kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if s.queue != nil {
		s.queue.close()
	}
}

// Subscription is a handle on one registered handler.
type Subscription struct {
	id      uint64
	kind    Kind
	handler Handler
	queue   *queue
	bus     *Bus
	once    sync.Once
}

// Kind returns the event kind the subscription listens to.
func (s *Subscription) Kind() Kind { return s.kind }

// Close unsubscribes. Events already queued for an asynchronous subscriber
// are still delivered. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.remove(s)
		}
	})
}

func (s *Subscription) deliver(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger := zap.NewNop()
			if s.bus != nil {
				logger = s.bus.logger
			}
			logger.Error("event handler panicked",
				zap.String("kind", string(ev.Kind())),
				zap.String("event", ev.ID()),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	s.handler(ctx, ev)
}
