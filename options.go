package latch

import "reflect"

// Option configures a latch or an interactor built on one. The type
// parameter is the value type of the latch the option applies to, which
// for interactor constructors is the parameter type.
type Option[T any] func(*settings[T])

type settings[T any] struct {
	equal   func(a, b T) bool
	initial *T
	runner  Runner
	probe   Probe
}

func newSettings[T any](opts []Option[T]) *settings[T] {
	s := &settings[T]{
		equal:  Equal[T](),
		runner: defaultRunner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithEqual overrides the equality used for distinct-until-changed delivery.
// For a subject it decides which parameters count as unchanged and therefore
// do not restart the derivation.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(s *settings[T]) { s.equal = eq }
}

// WithInitial seeds the latch with a starting value, as if it had been sent
// before the first watcher attached.
func WithInitial[T any](v T) Option[T] {
	return func(s *settings[T]) { s.initial = &v }
}

// WithRunner sets the execution context invocations and derivations run on.
// The default runs each unit on its own goroutine.
func WithRunner[T any](r Runner) Option[T] {
	return func(s *settings[T]) { s.runner = r }
}

// WithProbe attaches lifecycle instrumentation to an interactor.
func WithProbe[T any](p Probe) Option[T] {
	return func(s *settings[T]) { s.probe = p }
}

// Equal returns the default equality for T: Go == when the dynamic type is
// comparable, never equal otherwise. Slices, maps and functions therefore
// always count as changed, which errs on the side of delivering.
func Equal[T any]() func(a, b T) bool {
	return func(a, b T) bool {
		av, bv := any(a), any(b)
		if av == nil || bv == nil {
			return av == nil && bv == nil
		}
		if !reflect.TypeOf(av).Comparable() {
			return false
		}
		return av == bv
	}
}
