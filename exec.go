package latch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"golang.org/x/sync/semaphore"
)

// Runner is the execution context work is submitted to. Implementations
// decide where and how concurrently submitted functions run. Submission
// itself must not block on the work.
type Runner interface {
	Go(fn func())
}

type defaultRunner struct{}

func (defaultRunner) Go(fn func()) { go fn() }

// Serial runs submitted functions one after another on a single loop
// goroutine, in submission order. Submitting from the loop goroutine itself
// runs the function inline, so a unit that awaits another unit on the same
// runner cannot deadlock itself.
type Serial struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	gid    atomic.Int64
	closed bool
	done   chan struct{}
}

// NewSerial starts the loop goroutine.
func NewSerial() *Serial {
	s := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.gid.Store(-1)
	go s.loop()
	return s
}

func (s *Serial) loop() {
	s.gid.Store(goid.Get())
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
	}
}

// Go submits fn, or runs it inline when called from the loop goroutine.
// It panics if the runner is closed.
func (s *Serial) Go(fn func()) {
	if goid.Get() == s.gid.Load() {
		fn()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("latch: serial runner closed")
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close lets the loop drain its queue, then stops it and waits for it to
// exit. Close must not be called from the loop goroutine, and only after
// the pipelines running on this runner are done submitting.
func (s *Serial) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	<-s.done
}

// Pool runs each submitted function on its own goroutine while keeping at
// most n of them active at once. The rest wait for a slot.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a pool admitting n concurrent units.
func NewPool(n int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

func (p *Pool) Go(fn func()) {
	go func() {
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}
