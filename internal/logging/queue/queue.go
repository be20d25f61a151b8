// Package queue provides the buffer between log producers and the single
// flush loop that ships their entries: a multi-producer single-consumer FIFO
// with an optional occupancy ceiling.
package queue

import (
	"sync/atomic"
)

// Unbounded disables the occupancy ceiling.
const Unbounded = -1

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Queue is a lock-free linked FIFO. Any number of goroutines may call
// TryEnqueue concurrently; TryDequeue must only be called from one goroutine
// at a time.
//
// In bounded mode the occupancy counter, not the linked list, is the admission
// authority: enqueue increments first, checks the limit, and rolls the
// increment back on overshoot before touching the list. Checking the stored
// count and then inserting would let racing producers overshoot the limit.
type Queue[T any] struct {
	head  *node[T] // consumer-owned; starts as a stub
	tail  atomic.Pointer[node[T]]
	count atomic.Int64
	limit int64
}

// New creates a queue holding at most limit items, or without a ceiling when
// limit is Unbounded.
func New[T any](limit int) *Queue[T] {
	stub := &node[T]{}
	q := &Queue[T]{
		head:  stub,
		limit: int64(limit),
	}
	q.tail.Store(stub)
	return q
}

// TryEnqueue appends v and reports whether it was accepted. A false return
// means the queue is at its limit; the item is not stored and the caller must
// treat it as dropped.
func (q *Queue[T]) TryEnqueue(v T) bool {
	if q.limit == Unbounded {
		q.count.Add(1)
	} else if q.count.Add(1) > q.limit {
		q.count.Add(-1)
		return false
	}

	n := &node[T]{value: v}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
	return true
}

// TryDequeue removes and returns the oldest item. The counter is decremented
// only after an actual removal, never speculatively.
func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T
	next := q.head.next.Load()
	if next == nil {
		return zero, false
	}
	v := next.value
	next.value = zero
	q.head = next
	q.count.Add(-1)
	return v, true
}

// Len returns the current occupancy. Under concurrent enqueues the value may
// transiently count an item whose link is still being published.
func (q *Queue[T]) Len() int {
	return int(q.count.Load())
}
