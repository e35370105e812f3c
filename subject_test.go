package latch

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pull converts an observe stream into a step-by-step next function, so a
// test can drive a pipeline one delivery at a time.
func pull[T any](t *testing.T, seq iter.Seq2[T, error]) func() (T, error) {
	t.Helper()
	next, stop := iter.Pull2(seq)
	t.Cleanup(stop)

	return func() (T, error) {
		t.Helper()
		v, err, ok := next()
		if !ok {
			t.Fatal("observe stream ended early")
		}
		return v, err
	}
}

func TestSubject(t *testing.T) {
	t.Run("derives output for each distinct parameter", func(t *testing.T) {
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				yield(p*10, nil)
			}
		})

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), 1))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		require.NoError(t, s.Invoke(t.Context(), 2))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, 20, v)
	})

	t.Run("a derivation can stream several values", func(t *testing.T) {
		step := make(chan struct{})
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				for i := range 3 {
					if !yield(p+i, nil) {
						return
					}
					select {
					case <-step:
					case <-ctx.Done():
						return
					}
				}
			}
		})

		next := pull(t, s.Observe(t.Context()))
		require.NoError(t, s.Invoke(t.Context(), 100))

		for i := range 3 {
			v, err := next()
			require.NoError(t, err)
			assert.Equal(t, 100+i, v)
			if i < 2 {
				step <- struct{}{}
			}
		}
	})

	t.Run("equal derived values collapse to one delivery", func(t *testing.T) {
		s := NewSubject[string, string](func(ctx context.Context, p string) iter.Seq2[string, error] {
			return func(yield func(string, error) bool) {
				if !yield(p, nil) {
					return
				}
				yield(p, nil)
			}
		})

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), "a"))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, "a", v)

		require.NoError(t, s.Invoke(t.Context(), "b"))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, "b", v) // the duplicate "a" never shows
	})

	t.Run("a new parameter cancels the in-flight derivation", func(t *testing.T) {
		var started, cancelled atomic.Int32
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				if !yield(p*10, nil) {
					return
				}
				<-ctx.Done() // stall until superseded
			}
		}, WithProbe[int](Probe{
			Started:   func() { started.Add(1) },
			Cancelled: func() { cancelled.Add(1) },
		}))

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), 1))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		require.NoError(t, s.Invoke(t.Context(), 2))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, 20, v)

		assert.Equal(t, int32(2), started.Load())
		assert.Equal(t, int32(1), cancelled.Load())
	})

	t.Run("output not yet delivered is discarded on switch", func(t *testing.T) {
		starts := make(chan int)
		dones := make(chan int)
		ack := make(chan struct{})
		park := make(chan struct{})

		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				starts <- p
				if p == 1 {
					if !yield(11, nil) {
						return
					}
					<-ack // wait for the consumer to hold 11
					if !yield(12, nil) {
						return
					}
					dones <- p
					return
				}
				<-ctx.Done() // derive nothing for 2
			}
		})

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		got := make(chan int)
		var wg sync.WaitGroup
		wg.Go(func() {
			defer close(got)
			for v, err := range s.Observe(ctx) {
				if err != nil {
					continue
				}
				select {
				case got <- v:
				case <-ctx.Done():
					return
				}
				select {
				case <-park:
				case <-ctx.Done():
					return
				}
			}
		})

		require.NoError(t, s.Invoke(ctx, 1))
		assert.Equal(t, 1, <-starts)
		assert.Equal(t, 11, <-got) // consumer parked before its next take

		ack <- struct{}{}
		assert.Equal(t, 1, <-dones) // 12 sits undelivered in the slot

		require.NoError(t, s.Invoke(ctx, 2))
		assert.Equal(t, 2, <-starts) // switch done, the pending 12 went with it

		park <- struct{}{}
		select {
		case v := <-got:
			t.Fatalf("stale value %d delivered after the switch", v)
		case <-time.After(50 * time.Millisecond):
		}

		cancel()
		wg.Wait()
	})

	t.Run("an unchanged parameter does not restart the derivation", func(t *testing.T) {
		var started atomic.Int32
		s := NewSubject[string, int](func(ctx context.Context, p string) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				started.Add(1)
				if !yield(len(p), nil) {
					return
				}
				<-ctx.Done() // stay in flight
			}
		})

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), "x"))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		require.NoError(t, s.Invoke(t.Context(), "x"))
		require.NoError(t, s.Invoke(t.Context(), "x"))

		// a changed parameter still switches
		require.NoError(t, s.Invoke(t.Context(), "yy"))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		assert.Equal(t, int32(2), started.Load())
	})

	t.Run("custom parameter equality gates restarts", func(t *testing.T) {
		var started atomic.Int32
		s := NewSubject[string, int](func(ctx context.Context, p string) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				started.Add(1)
				yield(len(p), nil)
			}
		}, WithEqual(func(a, b string) bool { return len(a) == len(b) }))

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), "ab"))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		require.NoError(t, s.Invoke(t.Context(), "cd")) // same length, no restart
		require.NoError(t, s.Invoke(t.Context(), "efg"))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, 3, v)

		assert.Equal(t, int32(2), started.Load())
	})

	t.Run("a derivation failure flows down the stream", func(t *testing.T) {
		boom := errors.New("boom")
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				if p == 13 {
					yield(0, boom)
					return
				}
				yield(p*10, nil)
			}
		})

		next := pull(t, s.Observe(t.Context()))

		require.NoError(t, s.Invoke(t.Context(), 1))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		require.NoError(t, s.Invoke(t.Context(), 13))
		_, err = next()
		require.Error(t, err)

		var derr *DeriveError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, 13, derr.Param)
		assert.ErrorIs(t, err, boom)

		// the pipeline survives the failure
		require.NoError(t, s.Invoke(t.Context(), 2))
		v, err = next()
		require.NoError(t, err)
		assert.Equal(t, 20, v)
	})

	t.Run("cancellation of a superseded derivation is not an error", func(t *testing.T) {
		starts := make(chan int)
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				starts <- p
				if p == 1 {
					<-ctx.Done()
					yield(0, ctx.Err()) // a polite derive reports its cancellation
					return
				}
				yield(p*10, nil)
			}
		})

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		got := make(chan int)
		errs := make(chan error, 4)
		var wg sync.WaitGroup
		wg.Go(func() {
			for v, err := range s.Observe(ctx) {
				if err != nil {
					errs <- err
					continue
				}
				select {
				case got <- v:
				case <-ctx.Done():
					return
				}
			}
		})

		require.NoError(t, s.Invoke(ctx, 1))
		assert.Equal(t, 1, <-starts) // derivation for 1 stalled in flight

		require.NoError(t, s.Invoke(ctx, 2))
		assert.Equal(t, 2, <-starts)
		assert.Equal(t, 20, <-got)

		select {
		case err := <-errs:
			t.Fatalf("cancellation leaked as %v", err)
		default:
		}

		cancel()
		wg.Wait()
	})

	t.Run("observe before any invoke stays idle", func(t *testing.T) {
		var called atomic.Bool
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				called.Store(true)
				yield(p, nil)
			}
		})

		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
		defer cancel()

		for v, err := range s.Observe(ctx) {
			t.Fatalf("unexpected element %v %v", v, err)
		}
		assert.False(t, called.Load())
	})

	t.Run("an initial parameter derives immediately", func(t *testing.T) {
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				yield(p*10, nil)
			}
		}, WithInitial(5))

		next := pull(t, s.Observe(t.Context()))
		v, err := next()
		require.NoError(t, err)
		assert.Equal(t, 50, v)
	})

	t.Run("stopping iteration cancels the active derivation", func(t *testing.T) {
		cancelled := make(chan struct{})
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				if !yield(p, nil) {
					return
				}
				<-ctx.Done()
				close(cancelled)
			}
		})

		require.NoError(t, s.Invoke(t.Context(), 7))

		for v, err := range s.Observe(t.Context()) {
			require.NoError(t, err)
			assert.Equal(t, 7, v)
			break
		}

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("derivation kept running after the consumer left")
		}
	})

	t.Run("each observer runs its own pipeline", func(t *testing.T) {
		var started atomic.Int32
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				started.Add(1)
				yield(p*10, nil)
			}
		})

		require.NoError(t, s.Invoke(t.Context(), 1))

		a := pull(t, s.Observe(t.Context()))
		b := pull(t, s.Observe(t.Context()))

		va, err := a()
		require.NoError(t, err)
		vb, err := b()
		require.NoError(t, err)
		assert.Equal(t, 10, va)
		assert.Equal(t, 10, vb)
		assert.Equal(t, int32(2), started.Load())
	})

	t.Run("a slow consumer skips to the newest output", func(t *testing.T) {
		taken := make(chan struct{})
		flooded := make(chan struct{})
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				if !yield(1, nil) {
					return
				}
				select {
				case <-taken:
				case <-ctx.Done():
					return
				}
				for i := 2; i <= 100; i++ {
					if !yield(i, nil) {
						return
					}
				}
				close(flooded)
			}
		})

		require.NoError(t, s.Invoke(t.Context(), 0))

		got := []int{}
		for v, err := range s.Observe(t.Context()) {
			require.NoError(t, err)
			got = append(got, v)
			if v == 1 {
				taken <- struct{}{}
				<-flooded // everything after 1 has piled into the slot
			}
			if v == 100 {
				break
			}
		}

		// the 98 intermediate values were overwritten while we held back
		assert.Equal(t, []int{1, 100}, got)
	})

	t.Run("output never trails a newer parameter", func(t *testing.T) {
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(100 * time.Microsecond):
					}
					if !yield(p, nil) {
						return
					}
				}
			}
		})

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		got := []int{}
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Go(func() {
			defer close(done)
			for v, err := range s.Observe(ctx) {
				if err != nil {
					continue
				}
				got = append(got, v)
				if v == 20 {
					return
				}
			}
		})

		for p := 1; p <= 20; p++ {
			require.NoError(t, s.Invoke(ctx, p))
			time.Sleep(time.Millisecond)
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("never observed the final parameter")
		}
		cancel()
		wg.Wait()

		assert.IsIncreasing(t, got)
		assert.Equal(t, 20, got[len(got)-1])
	})

	t.Run("invoke with a done context records nothing", func(t *testing.T) {
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				yield(p, nil)
			}
		})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.ErrorIs(t, s.Invoke(ctx, 1), context.Canceled)
		_, ok := s.Param()
		assert.False(t, ok)
	})

	t.Run("probe sees the full lifecycle", func(t *testing.T) {
		var started, completed atomic.Int32
		s := NewSubject[int, int](func(ctx context.Context, p int) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				yield(p, nil)
			}
		}, WithProbe[int](Probe{
			Started:   func() { started.Add(1) },
			Completed: func() { completed.Add(1) },
		}))

		next := pull(t, s.Observe(t.Context()))
		require.NoError(t, s.Invoke(t.Context(), 1))
		_, err := next()
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return started.Load() == 1 && completed.Load() == 1
		}, time.Second, 5*time.Millisecond)
	})
}
