package latch

import (
	"context"
	"iter"

	"github.com/AnatoleLucet/latch/internal/mailbox"
)

// Latch is a single-slot broadcast cell. It always holds the latest value
// sent and every watcher independently follows it. A send replaces the
// current value without blocking, so a fast producer outruns slow consumers
// by overwriting instead of queueing, and a consumer scheduled late sees
// only the newest value.
type Latch[T any] struct {
	hub   *mailbox.Hub[T]
	equal func(a, b T) bool
}

// New creates a latch. Without WithInitial it starts empty.
func New[T any](opts ...Option[T]) *Latch[T] {
	return newLatch(newSettings(opts))
}

func newLatch[T any](s *settings[T]) *Latch[T] {
	l := &Latch[T]{
		hub:   mailbox.NewHub[T](),
		equal: s.equal,
	}
	if s.initial != nil {
		l.hub.Send(*s.initial)
	}
	return l
}

// Send publishes v as the latest value. It never blocks and never fails.
func (l *Latch[T]) Send(v T) {
	l.hub.Send(v)
}

// Peek returns the current value without subscribing.
func (l *Latch[T]) Peek() (T, bool) {
	return l.hub.Peek()
}

// Watch attaches a fresh watcher. If the latch already holds a value it
// becomes the watcher's first. Stop the watcher once done with it.
func (l *Latch[T]) Watch() *Watcher[T] {
	return &Watcher[T]{latch: l, box: l.hub.Attach()}
}

// Values returns a lazy, restartable sequence of the latch's values: the
// current one, if any, followed by every later distinct value, until ctx is
// done. Each iteration attaches its own watcher and detaches it on the way
// out.
func (l *Latch[T]) Values(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		w := l.Watch()
		defer w.Stop()

		for {
			v, err := w.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Watcher follows a latch from a single consumer goroutine. Values arrive
// distinct-until-changed: one equal to the previously delivered value is
// skipped.
type Watcher[T any] struct {
	latch   *Latch[T]
	box     *mailbox.Box[T]
	last    T
	seen    bool
	stopped bool
}

// Next blocks until the latch holds a value distinct from the last one
// delivered, or ctx is done. After Stop it returns ErrStopped.
func (w *Watcher[T]) Next(ctx context.Context) (T, error) {
	if w.stopped {
		var zero T
		return zero, ErrStopped
	}

	for {
		v, err := w.box.Take(ctx)
		if err != nil {
			var zero T
			return zero, err
		}

		if w.seen && w.latch.equal(w.last, v) {
			continue
		}

		w.last = v
		w.seen = true
		return v, nil
	}
}

// Stop detaches the watcher from its latch.
func (w *Watcher[T]) Stop() {
	if w.stopped {
		return
	}
	w.stopped = true
	w.latch.hub.Detach(w.box)
}
