package bus

import (
	"context"
	"sync"
)

// Loopback echoes every frame. It stands in for the motor controller on machines
// without one and in tests.
type Loopback struct {
	mu        sync.Mutex
	closed    bool
	transfers int
	last      []byte
}

func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Transfer(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	l.transfers++
	l.last = append(l.last[:0], tx...)
	return append([]byte(nil), tx...), nil
}

// Last returns a copy of the most recently transferred bytes.
func (l *Loopback) Last() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.last...)
}

func (l *Loopback) Transfers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfers
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
