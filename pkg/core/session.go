package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aretw0/lifecycle"
	"github.com/beevik/etree"
)

// Session owns the identity cache: at most one Entity per kind and
// identifier is alive for the lifetime of the Session. Entities are proxies
// whose documents are fetched through the Session's Facade.
type Session struct {
	mu       sync.RWMutex
	facade   Facade
	base     string
	logger   *slog.Logger
	entities map[string]*Entity
	watching bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger used for cache and fetch diagnostics.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates a Session resolving entity URIs below baseURI
// (for example "https://lims.example.org/api/v2").
func NewSession(facade Facade, baseURI string, opts ...SessionOption) *Session {
	s := &Session{
		facade:   facade,
		base:     strings.TrimRight(baseURI, "/"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		entities: make(map[string]*Entity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Facade() Facade  { return s.facade }
func (s *Session) BaseURI() string { return s.base }

// URI builds the resource address of the entity of kind with identifier id.
func (s *Session) URI(kind *Kind, id string) string {
	return s.base + "/" + kind.Collection + "/" + id
}

// Instance returns the entity of kind with identifier id, registering an
// unfetched one on first reference.
func (s *Session) Instance(kind *Kind, id string) *Entity {
	key := kind.Key(id)
	s.mu.RLock()
	e, ok := s.entities[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[key]; ok {
		return e
	}
	e = &Entity{kind: kind, id: id, session: s}
	s.entities[key] = e
	s.logger.Debug("entity registered", "key", key)
	return e
}

// InstanceWithDocument is like Instance but seeds the document when the
// entity has none yet, so that no fetch is needed. A document already held
// by a live entity is kept.
func (s *Session) InstanceWithDocument(kind *Kind, id string, doc *etree.Document) (*Entity, error) {
	e := s.Instance(kind, id)
	if e.Fetched() {
		return e, nil
	}
	if err := e.setDocument(doc); err != nil {
		return nil, err
	}
	return e, nil
}

// Lookup returns the live entity for kind and id without registering one.
func (s *Session) Lookup(kind *Kind, id string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[kind.Key(id)]
	return e, ok
}

// Len returns the number of live entities.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Invalidate drops the cached document of the entity with the given key so
// that the next read fetches it again. The entity itself stays registered.
func (s *Session) Invalidate(key string) bool {
	s.mu.RLock()
	e, ok := s.entities[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.invalidate()
	return true
}

// InvalidateURI is Invalidate addressed by resource URI. Query parameters
// are ignored.
func (s *Session) InvalidateURI(uri string) bool {
	uri = StripQuery(uri)
	s.mu.RLock()
	var hit *Entity
	for _, e := range s.entities {
		if e.URI() == uri {
			hit = e
			break
		}
	}
	s.mu.RUnlock()
	if hit == nil {
		return false
	}
	hit.invalidate()
	s.logger.Debug("entity invalidated", "key", hit.Key())
	return true
}

// Batch fetches the documents of every unfetched entity in one Facade call.
// Entities the backend did not return stay unfetched and will be loaded
// individually on first access.
func (s *Session) Batch(ctx context.Context, entities []*Entity) error {
	pending := make(map[string]*Entity)
	var uris []string
	for _, e := range entities {
		if e == nil || e.Fetched() {
			continue
		}
		uri := e.URI()
		if _, dup := pending[uri]; dup {
			continue
		}
		pending[uri] = e
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		return nil
	}

	docs, err := s.facade.BatchFetch(ctx, uris)
	if err != nil {
		return fmt.Errorf("batch fetch of %d entities: %w", len(uris), err)
	}
	var errs []error
	for _, uri := range uris {
		doc, ok := docs[uri]
		if !ok {
			s.logger.Debug("batch result missing", "uri", uri)
			continue
		}
		if err := pending[uri].setDocument(doc); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Debug("batch fetched", "requested", len(uris), "returned", len(docs))
	return errors.Join(errs...)
}

// List enumerates entities of kind through the Facade, which must implement
// Lister. Entries that carry a full representation seed the entity document.
func (s *Session) List(ctx context.Context, kind *Kind, query url.Values) ([]*Entity, error) {
	lister, ok := s.facade.(Lister)
	if !ok {
		return nil, fmt.Errorf("%w: list", ErrUnsupported)
	}
	entries, err := lister.List(ctx, kind.Collection, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Collection, err)
	}
	out := make([]*Entity, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		if isFullRepresentation(entry.Element, kind) {
			e, err := s.InstanceWithDocument(kind, entry.ID, Detach(entry.Element))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
			continue
		}
		out = append(out, s.Instance(kind, entry.ID))
	}
	return out, nil
}

func isFullRepresentation(el *etree.Element, kind *Kind) bool {
	if el == nil || el.Tag != kind.Tag {
		return false
	}
	for range el.ChildElementsSeq() {
		return true
	}
	return false
}

// Watch follows changes reported by a Watchable facade and invalidates the
// documents of changed entities. Events are forwarded on the returned
// channel, which is closed when ctx is done or the facade stops reporting.
func (s *Session) Watch(ctx context.Context) (<-chan Event, error) {
	w, ok := s.facade.(Watchable)
	if !ok {
		return nil, fmt.Errorf("%w: watch", ErrUnsupported)
	}
	in, err := w.Watch(ctx, "**/*")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()

	out := make(chan Event)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer func() {
			s.mu.Lock()
			s.watching = false
			s.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-in:
				if !ok {
					return nil
				}
				s.InvalidateURI(ev.URI)
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("session watch failed", "error", err)
	}))
	return out, nil
}

// StripQuery drops the query part of a URI, so that "x?state=1" and "x"
// address the same resource.
func StripQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}
