package bridge

import (
	"fmt"
	"sync"
)

// OverflowPolicy decides what Push does when the queue is full.
type OverflowPolicy string

const (
	// OverflowBlock makes Push wait for room, slowing the producer.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest queued item to make room.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// ParseOverflowPolicy maps a config value onto a policy. Empty means block.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", OverflowBlock:
		return OverflowBlock, nil
	case OverflowDropOldest:
		return OverflowDropOldest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded FIFO ring buffer safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	policy   OverflowPolicy
	closed   bool
	onDrop   func(T)

	// Stats
	pushed  int64
	popped  int64
	dropped int64
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int, policy OverflowPolicy) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if policy == "" {
		policy = OverflowBlock
	}
	q := &Queue[T]{
		buf:    make([]T, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// OnDrop registers fn to be called, with the lock held, for every item
// evicted by OverflowDropOldest.
func (q *Queue[T]) OnDrop(fn func(T)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrop = fn
}

// Push appends item. When the queue is full it either waits or evicts the
// oldest item, depending on the policy. Returns false if the queue is closed,
// including when it is closed while Push is waiting.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		if q.policy == OverflowDropOldest {
			evicted := q.popLocked()
			q.dropped++
			if q.onDrop != nil {
				q.onDrop(evicted)
			}
			break
		}
		q.notFull.Wait()
	}

	if q.closed {
		return false
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.pushed++

	q.notEmpty.Signal()
	return true
}

// Pop removes the oldest item, blocking until one is available or the queue
// is closed. Items queued before Close are still returned.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}

	item := q.popLocked()
	q.popped++
	q.notFull.Signal()
	return item, true
}

// tryPop removes the oldest item without blocking.
func (q *Queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}

	item := q.popLocked()
	q.popped++
	q.notFull.Signal()
	return item, true
}

// popLocked must be called with the lock held and count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return item
}

// Close stops accepting items and wakes every waiter.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Popped   int64
	Dropped  int64
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:    q.count,
		Capacity: len(q.buf),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Dropped:  q.dropped,
	}
}
