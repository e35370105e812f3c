package latch

import (
	"context"
	"errors"
	"iter"

	"github.com/AnatoleLucet/latch/internal/mailbox"
)

// Subject is the pipeline interactor. Invoke only records the latest
// parameter; every Observe call derives output from it and switches to a
// fresh derivation whenever a new distinct parameter lands. The switch
// cancels the in-flight derivation and joins it before the next one starts,
// so output derived from a stale parameter can never trail output from a
// newer one.
//
// The derive function must honor its context: cancellation is how a stale
// derivation is told to stop, and the switch waits for it to return.
type Subject[P, T any] struct {
	params *Latch[P]
	derive func(ctx context.Context, param P) iter.Seq2[T, error]
	outEq  func(a, b T) bool
	runner Runner
	probe  Probe
}

// NewSubject creates a pipeline interactor around derive. Options apply to
// the parameter side: WithEqual decides which parameters count as unchanged
// and therefore do not restart the derivation, WithInitial plants a
// starting parameter.
//
// todo: an option for output equality needs Option to carry both type
// parameters, today output uses the default.
func NewSubject[P, T any](derive func(ctx context.Context, param P) iter.Seq2[T, error], opts ...Option[P]) *Subject[P, T] {
	s := newSettings(opts)
	return &Subject[P, T]{
		params: newLatch(s),
		derive: derive,
		outEq:  Equal[T](),
		runner: s.runner,
		probe:  s.probe,
	}
}

// Invoke records param as the latest parameter. It never blocks on
// derivation work and only fails if ctx is already done. Derivation
// failures surface on the observe streams instead.
func (s *Subject[P, T]) Invoke(ctx context.Context, param P) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.params.Send(param)
	return nil
}

// Param returns the latest recorded parameter, if any.
func (s *Subject[P, T]) Param() (P, bool) {
	return s.params.Peek()
}

type element[T any] struct {
	val T
	err error
}

// Observe builds this subscriber's own switching pipeline over the recorded
// parameters. If a parameter is already recorded its derivation starts
// immediately; otherwise the stream is idle until the first Invoke.
//
// Values arrive distinct-until-changed. Errors carry a *DeriveError and do
// not end the stream. The stream ends when ctx is done or the consumer
// stops iterating, which also cancels the active derivation.
func (s *Subject[P, T]) Observe(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := mailbox.NewBox[element[T]]()
		go s.drive(ctx, out)

		var last T
		seen := false
		for {
			e, err := out.Take(ctx)
			if err != nil {
				return
			}

			if e.err != nil {
				var zero T
				if !yield(zero, e.err) {
					return
				}
				continue
			}

			if seen && s.outEq(last, e.val) {
				continue
			}
			last, seen = e.val, true

			if !yield(e.val, nil) {
				return
			}
		}
	}
}

// drive follows the parameter latch and keeps exactly one derivation alive
// at a time, switching on each distinct parameter.
func (s *Subject[P, T]) drive(ctx context.Context, out *mailbox.Box[element[T]]) {
	w := s.params.Watch()
	defer w.Stop()

	var stop context.CancelFunc
	var done chan struct{}
	defer func() {
		if stop != nil {
			stop()
			<-done
		}
	}()

	for {
		param, err := w.Next(ctx)
		if err != nil {
			return
		}

		if stop != nil {
			stop()
			<-done
			// drop output the consumer has not taken yet, it belongs
			// to the superseded parameter
			out.Clear()
		}

		dctx, cancel := context.WithCancel(ctx)
		stop = cancel
		done = make(chan struct{})

		p, d := param, done
		s.runner.Go(func() {
			defer close(d)
			s.deriveInto(dctx, p, out)
		})
	}
}

// deriveInto pulls one derivation and forwards its elements to the
// consumer's box, translating the outcome into probe events.
func (s *Subject[P, T]) deriveInto(ctx context.Context, param P, out *mailbox.Box[element[T]]) {
	s.probe.started()

	for v, err := range s.derive(ctx, param) {
		if ctx.Err() != nil {
			s.probe.cancelled()
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.probe.cancelled()
				return
			}
			s.probe.failed(err)
			out.Put(element[T]{err: &DeriveError{Param: param, Err: err}})
			return
		}
		out.Put(element[T]{val: v})
	}

	if ctx.Err() != nil {
		s.probe.cancelled()
		return
	}
	s.probe.completed()
}
