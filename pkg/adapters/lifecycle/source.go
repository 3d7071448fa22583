// Package lifecycle exposes LIMS change events as a lifecycle.Source so that
// a watch can be driven by the same runtime that supervises the rest of an
// application.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/lims/pkg/core"
)

type eventSource struct {
	events      <-chan core.Event
	out         chan lifecycle.Event
	collections map[string]bool
}

// SourceOption narrows what a source forwards.
type SourceOption func(*eventSource)

// WithCollections forwards only events on resources of the named
// collections, e.g. "samples" or "artifacts".
func WithCollections(names ...string) SourceOption {
	return func(s *eventSource) {
		if s.collections == nil {
			s.collections = make(map[string]bool)
		}
		for _, n := range names {
			s.collections[n] = true
		}
	}
}

// NewSource creates a lifecycle.Source that emits the events of a session
// or facade watch. core.Event satisfies lifecycle.Event.
func NewSource(events <-chan core.Event, opts ...SourceOption) lifecycle.Source {
	s := &eventSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch starts a session watch and wraps it in a source.
func Watch(ctx context.Context, session *core.Session, opts ...SourceOption) (lifecycle.Source, error) {
	events, err := session.Watch(ctx)
	if err != nil {
		return nil, err
	}
	return NewSource(events, opts...), nil
}

func (s *eventSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *eventSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				if !s.accepts(e) {
					continue
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

func (s *eventSource) accepts(e core.Event) bool {
	if len(s.collections) == 0 {
		return true
	}
	coll, _ := core.CollectionOf(e.URI)
	return s.collections[coll]
}
