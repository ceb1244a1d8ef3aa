// Package queue provides an unbounded, thread-safe FIFO used to hand
// payloads from the broadcast scheduler to the queue processor.
//
// The queue is designed for one producer and one consumer but is safe for
// any number of either. Dequeue supports a bounded wait so a consumer can
// observe shutdown promptly even when idle; Close wakes all waiters.
package queue

import (
	"sync"
	"time"
)

// Queue is a generic unbounded FIFO.
// The zero value is not usable; create one with New.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an item. Enqueue on a closed queue is a no-op; items
// produced during shutdown are intentionally dropped.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// Dequeue removes and returns the oldest item, waiting up to timeout for
// one to arrive. It returns the zero value and false when the wait expires
// or the queue is closed and empty.
func (q *Queue[T]) Dequeue(timeout time.Duration) (T, bool) {
	var zero T
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return zero, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, false
		}

		// sync.Cond has no timed wait; wake ourselves when the
		// deadline passes so the caller's bound holds.
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// TryDequeue removes and returns the oldest item without waiting.
func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns all queued items.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Close marks the queue closed and wakes all blocked Dequeue calls.
// Already-queued items remain readable via TryDequeue and Drain.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
