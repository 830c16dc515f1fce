// Package events implements the structured, broadcast-style event stream
// described in spec §4.6: every component publishes typed events carrying a
// monotonically increasing sequence number; multiple subscribers (CLI
// renderer, trace exporter, persistence) observe independently, and a slow
// subscriber never blocks a producer — it instead receives a coalesced
// dropped(n) event once its queue overflows.
package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus publishes Events to registered Subscribers in a fan-out pattern.
// Unlike a synchronous call-and-block bus, Bus delivers to each subscriber
// over its own bounded, buffered channel so one slow observer cannot stall
// another, or the publisher.
type Bus struct {
	seq atomic.Uint64

	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// New constructs a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Subscriber receives events published to a Bus.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event)

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) { f(ctx, event) }

// Subscription represents an active registration. Close stops delivery and
// is idempotent.
type Subscription interface {
	Close()
}

type subscription struct {
	bus     *Bus
	sub     Subscriber
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

const defaultQueueSize = 256

// Subscribe registers sub and returns a Subscription that can be closed to
// unregister. Delivery happens on a dedicated goroutine per subscriber in
// the order Publish was called; if the subscriber falls behind and the
// internal queue (size queueSize, or defaultQueueSize when <= 0) fills up,
// newly published events are dropped for that subscriber only and counted
// toward the next Dropped event delivered to it once queue space frees up.
func (b *Bus) Subscribe(ctx context.Context, sub Subscriber, queueSize int) Subscription {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &subscription{
		bus:   b,
		sub:   sub,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.run(ctx)
	return s
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				return
			}
			s.sub.HandleEvent(ctx, ev)
			if n := s.dropped.Swap(0); n > 0 {
				s.sub.HandleEvent(ctx, NewDropped(ev.envelope().SessionID, int64(n)))
			}
		case <-s.done:
			return
		}
	}
}

// Close stops delivery to this subscriber. Safe to call more than once.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
}

// NextSeq returns the next monotonically increasing sequence number. Publish
// calls this internally; it is exported so constructors building an Event
// ahead of Publish (rare) can stamp it consistently.
func (b *Bus) NextSeq() uint64 { return b.seq.Add(1) }

// Publish delivers event to every currently registered subscriber. Publish
// never blocks on a slow subscriber: each subscriber has its own buffered
// queue, and a full queue causes the event to be dropped for that
// subscriber (counted, and reported via a coalesced Dropped event) rather
// than stalling the publisher or other subscribers.
func (b *Bus) Publish(event Event) {
	env := event.envelope()
	if env.Seq == 0 {
		env.Seq = b.NextSeq()
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- event:
		default:
			s.dropped.Add(1)
		}
	}
}
