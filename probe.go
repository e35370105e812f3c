package latch

import "log/slog"

// Probe receives lifecycle notifications from an interactor's units of work.
// Every field is optional. Callbacks fire on the goroutine running the unit,
// so keep them quick.
//
// For any unit that started, exactly one of Completed, Cancelled or Failed
// fires afterwards.
type Probe struct {
	// Started fires when a unit of work begins. For a one-shot interactor
	// that is the invocation itself, for a subject it is each derivation.
	Started func()

	// Completed fires when a unit runs to the end.
	Completed func()

	// Cancelled fires when a unit is superseded by a newer parameter or
	// its context is cancelled before it finishes.
	Cancelled func()

	// Failed fires when a unit returns an error.
	Failed func(err error)
}

func (p Probe) started() {
	if p.Started != nil {
		p.Started()
	}
}

func (p Probe) completed() {
	if p.Completed != nil {
		p.Completed()
	}
}

func (p Probe) cancelled() {
	if p.Cancelled != nil {
		p.Cancelled()
	}
}

func (p Probe) failed(err error) {
	if p.Failed != nil {
		p.Failed(err)
	}
}

// Track returns a probe that brackets every unit of work with the counter
// behind ref, so anything watching the counter sees the interactor's
// activity. The counter is resolved per event and skipped once its owner
// is gone.
func Track(ref CounterRef) Probe {
	acquire := func() {
		if c := ref.Get(); c != nil {
			c.Acquire()
		}
	}
	release := func() {
		if c := ref.Get(); c != nil {
			c.Release()
		}
	}

	return Probe{
		Started:   acquire,
		Completed: release,
		Cancelled: release,
		Failed:    func(error) { release() },
	}
}

// NewLogProbe returns a probe that writes lifecycle events to logger at
// debug level, tagged with name.
func NewLogProbe(logger *slog.Logger, name string) Probe {
	return Probe{
		Started: func() {
			logger.Debug("unit started", "interactor", name)
		},
		Completed: func() {
			logger.Debug("unit completed", "interactor", name)
		},
		Cancelled: func() {
			logger.Debug("unit cancelled", "interactor", name)
		},
		Failed: func(err error) {
			logger.Debug("unit failed", "interactor", name, "err", err)
		},
	}
}
