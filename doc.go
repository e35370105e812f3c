// Package latch implements latest-wins pipelines around a single-slot
// broadcast cell.
//
// A Latch always holds the newest value sent to it. Sends never block and
// never queue: a slow consumer simply skips the values it was too late for
// and resumes at the current one. Watchers deliver distinct-until-changed,
// so redundant sends are invisible.
//
// On top of the cell sit interactors, units of work with an invoke side and
// an observe side. OneShot runs its work per invocation and remembers the
// result. Cached adds a per-parameter result cache. Subject is the
// pipeline shape: invoking only records the newest parameter, and each
// observer derives output from it, cancelling and replacing the in-flight
// derivation whenever the parameter changes. Paging specializes Subject
// for windowed collections.
//
// A Counter aggregates in-flight work into an observable busy flag, and
// hands out weak references so a background pipeline never keeps a dead
// screen's counter alive. Run, Launch and Bind tie the pieces together
// under a Scope:
//
//	scope := latch.NewScope(ctx)
//	counter := latch.NewCounter()
//
//	search := latch.NewSubject[string, []Result](deriveResults,
//		latch.WithProbe[string](latch.Track(counter.Ref())))
//	latch.Bind(scope, search, render)
//
//	search.Invoke(ctx, "query")
package latch
