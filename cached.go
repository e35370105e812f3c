package latch

import (
	"context"
	"iter"
	"sync"
)

// Cached is a OneShot that remembers results per parameter. Re-invoking
// with a parameter it has already computed republishes the cached result
// instead of running the work again. Failures are never cached, so a retry
// always reruns the work.
type Cached[P comparable, T any] struct {
	oneshot *OneShot[P, T]

	mu    sync.Mutex
	cache map[P]T
}

// NewCached creates a caching interactor around work. Options apply to the
// result latch.
func NewCached[P comparable, T any](work func(ctx context.Context, param P) (T, error), opts ...Option[T]) *Cached[P, T] {
	return &Cached[P, T]{
		oneshot: NewOneShot(work, opts...),
		cache:   make(map[P]T),
	}
}

// Invoke serves param from the cache when possible, otherwise runs the work
// function and caches its result. A done context fails the call on hits and
// misses alike.
func (c *Cached[P, T]) Invoke(ctx context.Context, param P) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	v, ok := c.cache[param]
	c.mu.Unlock()

	if ok {
		c.oneshot.out.Send(v)
		return nil
	}

	v, err := c.oneshot.invoke(ctx, param)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cache[param] = v
	c.mu.Unlock()
	return nil
}

// Observe streams results like OneShot.Observe. Cache hits republish, so a
// hit for a parameter whose result differs from the latest one is delivered
// like any fresh result.
func (c *Cached[P, T]) Observe(ctx context.Context) iter.Seq2[T, error] {
	return c.oneshot.Observe(ctx)
}

// Latest returns the most recent result, cached or fresh.
func (c *Cached[P, T]) Latest() (T, bool) {
	return c.oneshot.Latest()
}

// Invalidate drops the cached result for param. The next Invoke with it
// runs the work function again.
func (c *Cached[P, T]) Invalidate(param P) {
	c.mu.Lock()
	delete(c.cache, param)
	c.mu.Unlock()
}

// Reset drops every cached result.
func (c *Cached[P, T]) Reset() {
	c.mu.Lock()
	c.cache = make(map[P]T)
	c.mu.Unlock()
}
