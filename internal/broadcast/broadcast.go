// Package broadcast implements a bounded, multi-subscriber broadcast
// channel where slow subscribers receive a lag count instead of blocking
// the publisher, per the ring-of-slots-with-cursors design (no native
// equivalent exists in this module's dependency stack).
package broadcast

import (
	"context"
	"sync"
)

// Broadcaster fans a sequence of values of type T out to any number of
// subscribers, each with an independent read cursor. A subscriber that
// falls more than capacity items behind the publisher observes a gap and
// is fast-forwarded to the oldest still-held item instead of blocking the
// publisher. The zero value is not usable; construct with New.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	slots    []T
	capacity uint64
	oldest   uint64 // sequence number of the oldest slot still held
	next     uint64 // sequence number that will be assigned on the next Send

	subs      map[int]*cursor
	nextSubID int

	closed bool
	wake   chan struct{} // closed and replaced whenever state changes
}

type cursor struct {
	next uint64 // next sequence number this subscriber wants to read
}

// New constructs a Broadcaster holding at most capacity in-flight items.
// capacity must be at least 1.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		slots:    make([]T, capacity),
		capacity: uint64(capacity),
		subs:     make(map[int]*cursor),
		wake:     make(chan struct{}),
	}
}

// Send publishes a value to all current and future subscribers. A no-op
// after Close.
func (b *Broadcaster[T]) Send(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	seq := b.next
	b.next++
	b.slots[seq%b.capacity] = v
	if b.next > b.capacity {
		b.oldest = b.next - b.capacity
	}
	b.signal()
	b.mu.Unlock()
}

// Close marks the broadcaster closed; all blocked and future Recv calls
// return ok=false once fully drained.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.signal()
	}
	b.mu.Unlock()
}

// signal wakes every goroutine blocked in Recv. Must be called with mu held.
func (b *Broadcaster[T]) signal() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Subscriber is one consumer's view of a Broadcaster.
type Subscriber[T any] struct {
	b  *Broadcaster[T]
	id int
}

// Subscribe returns a Subscriber whose cursor starts immediately after the
// most recently sent item, so it only observes items sent from this point
// forward.
func (b *Broadcaster[T]) Subscribe() *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = &cursor{next: b.next}
	return &Subscriber[T]{b: b, id: id}
}

// Unsubscribe releases this subscriber's cursor. Safe to call more than
// once and safe to call concurrently with Recv (a racing Recv simply sees
// no further progress and must be cancelled independently via ctx).
func (b *Broadcaster[T]) Unsubscribe(s *Subscriber[T]) {
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()
}

// Recv waits for the next item targeted at this subscriber, or for ctx to
// be cancelled, or for the broadcaster to close.
//
//   - ok==true: value is valid; lag holds how many items were skipped
//     (dropped before this subscriber could read them) to reach it.
//   - ok==false, err==nil: the broadcaster was closed and fully drained.
//   - ok==false, err!=nil: ctx was cancelled before an item arrived.
func (s *Subscriber[T]) Recv(ctx context.Context) (value T, lag int, ok bool, err error) {
	b := s.b
	for {
		b.mu.Lock()
		c, present := b.subs[s.id]
		if !present {
			b.mu.Unlock()
			return value, 0, false, nil
		}
		if c.next < b.oldest {
			lag = int(b.oldest - c.next)
			c.next = b.oldest
			b.mu.Unlock()
			continue
		}
		if c.next < b.next {
			v := b.slots[c.next%b.capacity]
			c.next++
			b.mu.Unlock()
			return v, lag, true, nil
		}
		if b.closed {
			b.mu.Unlock()
			return value, 0, false, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return value, 0, false, ctx.Err()
		}
	}
}
