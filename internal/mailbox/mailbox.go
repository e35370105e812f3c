// Package mailbox implements the single-slot delivery primitive behind the
// public latch type. A box holds at most one pending value and a put always
// overwrites, so the reader side can fall arbitrarily far behind without
// ever blocking a writer or piling up stale values.
package mailbox

import (
	"context"
	"sync"
)

// Box is a single-slot mailbox for exactly one consumer. Puts overwrite the
// pending value, takes drain it. Any number of goroutines may put, but only
// one goroutine should take.
type Box[T any] struct {
	mu    sync.Mutex
	val   T
	full  bool
	ready chan struct{}
}

// NewBox creates an empty box.
func NewBox[T any]() *Box[T] {
	return &Box[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, overwriting any pending value. It never blocks.
func (b *Box[T]) Put(v T) {
	b.mu.Lock()
	b.val = v
	b.full = true
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Take returns the pending value, blocking until one is put or ctx is done.
func (b *Box[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := b.TryTake(); ok {
			return v, nil
		}

		select {
		case <-b.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryTake returns the pending value without blocking.
func (b *Box[T]) TryTake() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		var zero T
		return zero, false
	}

	v := b.val
	var zero T
	b.val = zero
	b.full = false
	return v, true
}

// Clear drops the pending value, if any. The caller must make sure no put
// is in flight, otherwise the racing value may survive.
func (b *Box[T]) Clear() {
	b.mu.Lock()
	var zero T
	b.val = zero
	b.full = false
	b.mu.Unlock()

	select {
	case <-b.ready:
	default:
	}
}
