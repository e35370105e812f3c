package latch

import (
	"context"
	"errors"
	"iter"
)

// OneShot runs a work function once per invocation and publishes each
// result on a latch. Invoke waits for the work, so the caller learns how
// its own invocation went; observers only ever see results.
type OneShot[P, T any] struct {
	work   func(ctx context.Context, param P) (T, error)
	out    *Latch[T]
	runner Runner
	probe  Probe
}

// NewOneShot creates a one-shot interactor around work. Options apply to
// the result latch.
func NewOneShot[P, T any](work func(ctx context.Context, param P) (T, error), opts ...Option[T]) *OneShot[P, T] {
	s := newSettings(opts)
	return &OneShot[P, T]{
		work:   work,
		out:    newLatch(s),
		runner: s.runner,
		probe:  s.probe,
	}
}

// Invoke runs the work function with param on the runner and waits for it.
// On success the result is published; on failure or cancellation nothing
// is published and the latch keeps its previous value.
func (o *OneShot[P, T]) Invoke(ctx context.Context, param P) error {
	_, err := o.invoke(ctx, param)
	return err
}

func (o *OneShot[P, T]) invoke(ctx context.Context, param P) (T, error) {
	type result struct {
		v   T
		err error
	}

	// probe events fire inside the unit, started through terminal, never
	// on the waiting side: a unit still queued on a saturated runner has
	// no lifecycle yet
	done := make(chan result, 1)
	o.runner.Go(func() {
		if err := ctx.Err(); err != nil {
			done <- result{err: err}
			return
		}

		o.probe.started()
		v, err := o.work(ctx, param)
		switch {
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				o.probe.cancelled()
			} else {
				o.probe.failed(err)
			}
		case ctx.Err() != nil:
			o.probe.cancelled()
			err = ctx.Err()
		default:
			o.probe.completed()
		}
		done <- result{v: v, err: err}
	})

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, r.err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		o.out.Send(r.v)
		return r.v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Observe streams published results, distinct-until-changed. A subscription
// opened after a successful invocation starts from the latest result; one
// opened before any yields nothing until a result lands.
func (o *OneShot[P, T]) Observe(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v := range o.out.Values(ctx) {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Latest returns the most recent result, if any invocation produced one.
func (o *OneShot[P, T]) Latest() (T, bool) {
	return o.out.Peek()
}
