package latch

import (
	"context"
	"iter"
)

// PagingConfig describes how a paged derivation should window its data. It
// travels with the parameter, untouched, to the derive function that builds
// the paged collection.
type PagingConfig struct {
	// PageSize is the number of items per page.
	PageSize int

	// PrefetchDistance is how close to the edge of loaded content the
	// consumer may get before the next page load should kick off.
	PrefetchDistance int

	// InitialLoadSize is the item count of the first load. Zero means
	// PageSize.
	InitialLoadSize int
}

// Boundary names an edge of the loaded window.
type Boundary int

const (
	BoundaryStart Boundary = iota
	BoundaryEnd
)

// PagingParams bundles an inner parameter with the paging configuration and
// an optional callback fired when the consumer reaches a boundary of the
// loaded window.
//
// Two PagingParams are unchanged when Param and Config are: OnBoundary is
// deliberately left out of equality, callers rebuild closures all the time
// and a fresh callback alone must not restart a derivation.
type PagingParams[P any] struct {
	Param      P
	Config     PagingConfig
	OnBoundary func(Boundary)
}

// Paging is a Subject whose parameters are PagingParams. It threads the
// configuration and callback through to the derive function; the shape of
// the paged collection it produces is the caller's business.
type Paging[P, E any] struct {
	subject *Subject[PagingParams[P], E]
}

// NewPaging creates a paging pipeline interactor around derive. Options
// configure the inner parameter: WithEqual applies to Param, WithRunner and
// WithProbe to the derivations. WithInitial is not honored, a first request
// needs a config, so invoke it instead.
func NewPaging[P, E any](derive func(ctx context.Context, params PagingParams[P]) iter.Seq2[E, error], opts ...Option[P]) *Paging[P, E] {
	s := newSettings(opts)

	inner := s.equal
	wrapped := []Option[PagingParams[P]]{
		WithEqual(func(a, b PagingParams[P]) bool {
			return inner(a.Param, b.Param) && a.Config == b.Config
		}),
		WithRunner[PagingParams[P]](s.runner),
		WithProbe[PagingParams[P]](s.probe),
	}

	return &Paging[P, E]{
		subject: NewSubject[PagingParams[P], E](derive, wrapped...),
	}
}

// Invoke records params as the latest paging request.
func (p *Paging[P, E]) Invoke(ctx context.Context, params PagingParams[P]) error {
	return p.subject.Invoke(ctx, params)
}

// Observe streams derived paged collections, switching like a Subject.
func (p *Paging[P, E]) Observe(ctx context.Context) iter.Seq2[E, error] {
	return p.subject.Observe(ctx)
}

// Params returns the latest recorded paging request, if any.
func (p *Paging[P, E]) Params() (PagingParams[P], bool) {
	return p.subject.Param()
}
