// Package events implements the fabric Event Bus: a single-producer,
// multi-consumer fan-out of FabricEvents with a bounded, drop-oldest queue
// per subscriber.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/nexus/pkg/types"
)

// DefaultBufferSize is the per-subscriber queue capacity used when a
// SubscribeOptions does not override it.
const DefaultBufferSize = 256

// SubscribeOptions controls how a new subscription is seeded and sized.
type SubscribeOptions struct {
	// BufferSize overrides DefaultBufferSize when non-zero.
	BufferSize int
	// IncludeSnapshot, when true, seeds the subscription with a
	// SNAPSHOT_BEGIN marker, one synthetic registration event per entity
	// returned by the Bus's snapshot function, then SNAPSHOT_END, before any
	// live event can reach the subscriber.
	IncludeSnapshot bool
}

// SnapshotFunc produces the synthetic registration events to seed a
// snapshot-prelude subscription. It is supplied by the caller that owns the
// Fabric State Store (the API server), not by the Bus itself, since the Bus
// has no knowledge of entities — only of events.
type SnapshotFunc func() []types.FabricEvent

// Bus fans FabricEvents out to every active subscription. A Bus has no
// background goroutine of its own: Publish runs synchronously on the
// caller's goroutine and never blocks on a slow subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	next uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe creates a new subscription. If opts.IncludeSnapshot is set, the
// subscription's queue is seeded atomically with the snapshot prelude before
// it becomes visible to Publish, so no live event can be interleaved into
// the prelude; with a nil snapshot the prelude is just SNAPSHOT_BEGIN and
// SNAPSHOT_END.
func (b *Bus) Subscribe(opts SubscribeOptions, snapshot SnapshotFunc) *Subscription {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	sub := newSubscription(size)

	if opts.IncludeSnapshot {
		prelude := buildPrelude(snapshot)
		for _, ev := range prelude {
			sub.enqueueLocked(ev)
		}
	}

	b.mu.Lock()
	b.next++
	sub.id = b.next
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe detaches sub from future Publish calls and wakes any blocked
// reader with ErrClosed.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// Publish delivers event to every active subscription. It never blocks: a
// subscription whose queue is full has its oldest undelivered event dropped
// to make room, and a STREAM_LAGGED marker carrying the cumulative drop
// count is delivered to that subscription ahead of the next real event it
// reads.
func (b *Bus) Publish(event types.FabricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.enqueue(event)
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func buildPrelude(snapshot SnapshotFunc) []types.FabricEvent {
	var entities []types.FabricEvent
	if snapshot != nil {
		entities = snapshot()
	}
	prelude := make([]types.FabricEvent, 0, len(entities)+2)
	prelude = append(prelude, types.FabricEvent{Kind: types.EventSnapshotBegin, Timestamp: time.Now()})
	prelude = append(prelude, entities...)
	prelude = append(prelude, types.FabricEvent{Kind: types.EventSnapshotEnd, Timestamp: time.Now()})
	return prelude
}

// ErrClosed is returned by Subscription.Next once the subscription has been
// unsubscribed and its queue drained.
var ErrClosed = fmt.Errorf("events: subscription closed")

// Subscription is a single consumer's view into the Bus: a bounded FIFO
// queue plus the bookkeeping needed to synthesize STREAM_LAGGED markers.
type Subscription struct {
	id uint64

	mu         sync.Mutex
	queue      []types.FabricEvent
	cap        int
	lagPending bool
	lagDropped int
	closed     bool

	notify chan struct{}
	done   chan struct{}
}

func newSubscription(capacity int) *Subscription {
	return &Subscription{
		cap:    capacity,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueueLocked is used only during prelude seeding, before the
// subscription is visible to any other goroutine; it skips the notify
// signal since nothing can be blocked in Next yet.
func (s *Subscription) enqueueLocked(event types.FabricEvent) {
	s.queue = append(s.queue, event)
}

func (s *Subscription) enqueue(event types.FabricEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.cap {
		s.queue = s.queue[1:]
		s.lagPending = true
		s.lagDropped++
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the subscription is closed, or
// ctx is done. A pending lag marker, if any, is always delivered before the
// real event it preceded.
func (s *Subscription) Next(ctx context.Context) (types.FabricEvent, error) {
	for {
		s.mu.Lock()
		if s.lagPending {
			dropped := s.lagDropped
			s.lagPending = false
			s.lagDropped = 0
			s.mu.Unlock()
			return types.FabricEvent{
				Kind:       types.EventStreamLagged,
				Attributes: map[string]string{"dropped": fmt.Sprintf("%d", dropped)},
				Timestamp:  time.Now(),
			}, nil
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return types.FabricEvent{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return types.FabricEvent{}, ctx.Err()
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
