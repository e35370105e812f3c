package latch

import (
	"context"
	"iter"
)

// Interactor is the invoke side of an asynchronous unit of work: callers
// submit a parameter and the interactor takes it from there. What invoking
// means, and whether it blocks, is up to the implementation.
type Interactor[P any] interface {
	Invoke(ctx context.Context, param P) error
}

// Source is the observe side: a lazy stream of derived values. Each Observe
// call builds an independent subscription that ends when ctx is done or the
// consumer stops iterating.
//
// Iteration yields either an element or an error raised by the work that
// should have produced it. An error does not end the stream; a later
// parameter may still derive fresh values.
type Source[T any] interface {
	Observe(ctx context.Context) iter.Seq2[T, error]
}
