package latch

import (
	"context"
	"iter"
	"sync"
	"weak"
)

// Counter tracks how many operations are in flight and broadcasts the
// derived busy state. A UI typically watches one shared counter to show a
// single activity indicator for any number of pipelines.
//
// Holders that must not keep the counter's owner alive take a CounterRef.
type Counter struct {
	mu    sync.Mutex
	n     int
	count *Latch[int]
	busy  *Latch[bool]
}

// NewCounter creates an idle counter.
func NewCounter() *Counter {
	return &Counter{
		count: New(WithInitial(0)),
		busy:  New(WithInitial(false)),
	}
}

// Acquire increments the in-flight count.
func (c *Counter) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.n++
	c.count.Send(c.n)
	if c.n == 1 {
		c.busy.Send(true)
	}
}

// Release decrements the in-flight count. Releasing an idle counter panics:
// every release must pair with an acquire.
func (c *Counter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.n == 0 {
		panic("latch: counter released below zero")
	}
	c.n--
	c.count.Send(c.n)
	if c.n == 0 {
		c.busy.Send(false)
	}
}

// Count returns the number of in-flight operations.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Busy reports whether any operation is in flight.
func (c *Counter) Busy() bool {
	return c.Count() > 0
}

// Watch returns a watcher over the busy state. Its first value is the state
// at attach time.
func (c *Counter) Watch() *Watcher[bool] {
	return c.busy.Watch()
}

// Values streams the busy state until ctx is done. Rapid flips collapse to
// the latest state, so consumers see busy edges, not every acquire.
func (c *Counter) Values(ctx context.Context) iter.Seq[bool] {
	return c.busy.Values(ctx)
}

// Counts streams the raw in-flight count until ctx is done.
func (c *Counter) Counts(ctx context.Context) iter.Seq[int] {
	return c.count.Values(ctx)
}

// Ref returns a weak handle on the counter. The handle never keeps the
// counter alive: once the owner drops it and the collector reclaims it, the
// handle's operations turn into no-ops.
func (c *Counter) Ref() CounterRef {
	return CounterRef{ptr: weak.Make(c)}
}

// CounterRef is a non-owning reference to a Counter. The zero CounterRef
// refers to nothing, and every operation through it is a no-op, which makes
// it the "no counter" argument for Run and Launch.
type CounterRef struct {
	ptr weak.Pointer[Counter]
}

// Get returns the counter, or nil once it has been collected or if the ref
// is zero.
func (r CounterRef) Get() *Counter {
	return r.ptr.Value()
}

// acquire bumps the counter behind r, if it is still alive, and returns the
// matching release. The release pins the same counter so the pair always
// balances, and runs at most once.
func (r CounterRef) acquire() (release func()) {
	c := r.Get()
	if c == nil {
		return func() {}
	}
	c.Acquire()

	var once sync.Once
	return func() {
		once.Do(c.Release)
	}
}
