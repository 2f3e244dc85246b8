package processing

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO. When it is full, Put discards the oldest value so the
// most recent ones are always kept.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	size    int
	ready   chan struct{}
	dropped int64
}

func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{size: size, ready: make(chan struct{}, 1)}
}

// Put appends v and reports whether an older value was discarded to make room.
func (q *Queue[T]) Put(v T) bool {
	q.mu.Lock()
	discarded := len(q.items) == q.size
	if discarded {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return discarded
}

// TryTake removes and returns the oldest value, if any.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Take blocks until a value is available or ctx is done.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryTake(); ok {
			return v, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped counts values discarded because the queue was full.
func (q *Queue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
