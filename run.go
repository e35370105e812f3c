package latch

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
)

// Run invokes ia with param, bracketing the invocation with the counter
// behind ref. The release half of the bracket runs on every exit path,
// panics included, and both halves quietly skip a counter whose owner is
// gone. Pass a zero CounterRef to run untracked.
func Run[P any](ctx context.Context, ia Interactor[P], param P, ref CounterRef) error {
	release := ref.acquire()
	defer release()

	return ia.Invoke(ctx, param)
}

// Scope bounds the lifetime of launched and bound work. Stopping the scope
// cancels everything started in it; Wait joins it all and reports errors.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  *pool.ContextPool
	log    *slog.Logger
}

// ScopeOption configures a scope.
type ScopeOption func(*Scope)

// WithLogger sets the logger bound observers report swallowed stream errors
// to. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ScopeOption {
	return func(s *Scope) { s.log = logger }
}

// WithMaxTasks caps how many launched and bound tasks run concurrently.
// At the cap, Launch and Bind wait for a slot before returning.
func WithMaxTasks(n int) ScopeOption {
	return func(s *Scope) { s.tasks = s.tasks.WithMaxGoroutines(n) }
}

// NewScope creates a scope descending from ctx.
func NewScope(ctx context.Context, opts ...ScopeOption) *Scope {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scope{
		ctx:    ctx,
		cancel: cancel,
		tasks:  pool.New().WithContext(ctx),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the scope's context. It is done once the scope stops.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Stop cancels every task in the scope. Wait still joins them.
func (s *Scope) Stop() {
	s.cancel()
}

// Wait joins every task in the scope and returns their combined errors.
func (s *Scope) Wait() error {
	defer s.cancel()
	return s.tasks.Wait()
}

// Handle tracks one launched invocation.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Wait blocks until the invocation finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Stop cancels the invocation. Wait still reports how it ended.
func (h *Handle) Stop() {
	h.cancel()
}

// Launch starts Run as its own task in the scope and returns a handle to
// await or stop it. The invocation is cancelled either through the handle
// or by stopping the scope, whichever comes first. On a scope capped with
// WithMaxTasks, Launch blocks until a task slot frees up.
func Launch[P any](s *Scope, ia Interactor[P], param P, ref CounterRef) *Handle {
	ctx, cancel := context.WithCancel(s.ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	s.tasks.Go(func(context.Context) error {
		defer cancel()
		defer close(h.done)
		h.err = Run(ctx, ia, param, ref)
		return h.err
	})
	return h
}

// BindOption configures Bind.
type BindOption func(*binder)

type binder struct {
	onError func(error)
}

// WithOnError routes stream errors to fn instead of the scope's logger.
func WithOnError(fn func(error)) BindOption {
	return func(b *binder) { b.onError = fn }
}

// Bind consumes src.Observe for the lifetime of the scope, feeding every
// element to onEach. Stream errors do not stop the loop: they go to the
// WithOnError handler, or to the scope's logger at debug level.
func Bind[T any](s *Scope, src Source[T], onEach func(T), opts ...BindOption) {
	b := &binder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.onError == nil {
		log := s.log
		b.onError = func(err error) {
			log.Debug("bound stream error", "err", err)
		}
	}

	s.tasks.Go(func(ctx context.Context) error {
		for v, err := range src.Observe(ctx) {
			if err != nil {
				b.onError(err)
				continue
			}
			onEach(v)
		}
		return nil
	})
}
