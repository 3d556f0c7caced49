// Package bus is the in-process broadcast channel carrying control-plane
// events. Every subscriber owns a bounded queue; publishing never blocks and a
// slow subscriber loses its own oldest events, which it learns about through a
// LaggedError on its next receive.
package bus

import (
    "context"
    "errors"
    "fmt"
    "sync"

    obsmetrics "github.com/amirimatin/kvcoord/pkg/observability/metrics"
)

// DefaultCapacity is the per-subscriber backlog before drops begin.
const DefaultCapacity = 1024

var ErrClosed = errors.New("bus: closed")

// LaggedError reports events that a subscriber lost to queue overflow.
type LaggedError struct {
    Missed uint64
}

func (e *LaggedError) Error() string { return fmt.Sprintf("bus: subscriber lagged, %d events dropped", e.Missed) }

// Publisher is the write side used by components that only emit events.
type Publisher interface {
    Publish(ev Event) int
}

type Bus struct {
    mu       sync.Mutex
    capacity int
    subs     map[*Subscription]struct{}
    closed   bool
}

// New returns a bus whose subscribers buffer up to capacity events
// (DefaultCapacity when capacity <= 0).
func New(capacity int) *Bus {
    if capacity <= 0 { capacity = DefaultCapacity }
    return &Bus{capacity: capacity, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Only events published after this call
// are delivered; consumers must hold the handle for their whole lifetime.
func (b *Bus) Subscribe() *Subscription {
    s := &Subscription{bus: b, notify: make(chan struct{}, 1), capacity: b.capacity}
    b.mu.Lock()
    if b.closed {
        s.closed = true
    } else {
        b.subs[s] = struct{}{}
    }
    n := len(b.subs)
    b.mu.Unlock()
    obsmetrics.BusSubscribers.Set(float64(n))
    return s
}

// Publish fans ev out to every current subscriber and returns how many were
// reached. Having no subscribers is not an error.
func (b *Bus) Publish(ev Event) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed { return 0 }
    for s := range b.subs {
        s.push(ev)
    }
    obsmetrics.BusPublished.WithLabelValues(string(ev.Kind)).Inc()
    return len(b.subs)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
    b.mu.Lock(); defer b.mu.Unlock()
    return len(b.subs)
}

// Close detaches every subscriber; their pending Recv calls return ErrClosed
// once the already queued events are drained.
func (b *Bus) Close() {
    b.mu.Lock()
    if b.closed { b.mu.Unlock(); return }
    b.closed = true
    subs := b.subs
    b.subs = make(map[*Subscription]struct{})
    b.mu.Unlock()
    for s := range subs { s.shut() }
    obsmetrics.BusSubscribers.Set(0)
}

func (b *Bus) remove(s *Subscription) {
    b.mu.Lock()
    delete(b.subs, s)
    n := len(b.subs)
    b.mu.Unlock()
    obsmetrics.BusSubscribers.Set(float64(n))
}

// Subscription is one subscriber's ordered view of the bus.
type Subscription struct {
    bus      *Bus
    capacity int
    notify   chan struct{}

    mu     sync.Mutex
    queue  []Event
    missed uint64
    closed bool
}

func (s *Subscription) push(ev Event) {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return }
    if len(s.queue) >= s.capacity {
        // drop the oldest unread event of this subscriber only
        s.queue[0] = Event{}
        s.queue = s.queue[1:]
        s.missed++
        obsmetrics.BusDropped.Inc()
    }
    s.queue = append(s.queue, ev)
    s.mu.Unlock()
    s.wake()
}

func (s *Subscription) wake() {
    select {
    case s.notify <- struct{}{}:
    default:
    }
}

// Recv returns the next event in publish order. A *LaggedError is returned
// once after events were dropped, before delivery resumes with the oldest
// retained event. ErrClosed is returned after Close with an empty queue.
func (s *Subscription) Recv(ctx context.Context) (Event, error) {
    for {
        s.mu.Lock()
        if s.missed > 0 {
            n := s.missed
            s.missed = 0
            s.mu.Unlock()
            return Event{}, &LaggedError{Missed: n}
        }
        if len(s.queue) > 0 {
            ev := s.queue[0]
            s.queue[0] = Event{}
            s.queue = s.queue[1:]
            s.mu.Unlock()
            return ev, nil
        }
        closed := s.closed
        s.mu.Unlock()
        if closed { return Event{}, ErrClosed }

        select {
        case <-ctx.Done():
            return Event{}, ctx.Err()
        case <-s.notify:
        }
    }
}

// Pending reports the number of queued, unread events.
func (s *Subscription) Pending() int {
    s.mu.Lock(); defer s.mu.Unlock()
    return len(s.queue)
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
    s.bus.remove(s)
    s.shut()
}

func (s *Subscription) shut() {
    s.mu.Lock()
    s.closed = true
    s.mu.Unlock()
    s.wake()
}
