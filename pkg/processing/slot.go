package processing

import (
	"context"
	"sync"
)

// Slot holds at most one pending value. Put overwrites whatever has not been taken
// yet, so a consumer always sees the newest value and never a backlog.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	full    bool
	ready   chan struct{}
	dropped int64
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ready: make(chan struct{}, 1)}
}

// Put stores v and reports whether an untaken value was overwritten.
func (s *Slot[T]) Put(v T) bool {
	s.mu.Lock()
	replaced := s.full
	if replaced {
		s.dropped++
	}
	s.value = v
	s.full = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return replaced
}

// TryTake returns the pending value, if any, and empties the slot.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// Take blocks until a value is available or ctx is done.
func (s *Slot[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := s.TryTake(); ok {
			return v, nil
		}
		select {
		case <-s.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Dropped counts values overwritten before anyone took them.
func (s *Slot[T]) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
