package typed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aretw0/lims/pkg/core"
)

// Model is a typed view over an entity, usually a struct embedding
// *core.Entity.
type Model interface {
	Unwrap() *core.Entity
}

// Collection gives type-safe access to the entities of one kind.
type Collection[T Model] struct {
	session *core.Session
	kind    *core.Kind
	wrap    func(*core.Entity) T
}

// NewCollection creates a collection of kind over session. wrap turns a
// generic entity into the typed model.
func NewCollection[T Model](session *core.Session, kind *core.Kind, wrap func(*core.Entity) T) *Collection[T] {
	return &Collection[T]{session: session, kind: kind, wrap: wrap}
}

func (c *Collection[T]) Kind() *core.Kind       { return c.kind }
func (c *Collection[T]) Session() *core.Session { return c.session }

// Get returns the model for id without fetching it.
func (c *Collection[T]) Get(id string) T {
	return c.wrap(c.session.Instance(c.kind, id))
}

// Load returns the model for id with its document fetched.
func (c *Collection[T]) Load(ctx context.Context, id string) (T, error) {
	m := c.Get(id)
	if err := m.Unwrap().Fetch(ctx, false); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}

// List returns the models matching query. See Query for the common filters.
func (c *Collection[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	entities, err := c.session.List(ctx, c.kind, query)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		out = append(out, c.wrap(e))
	}
	return out, nil
}

// Batch fetches every unfetched model in one round trip.
func (c *Collection[T]) Batch(ctx context.Context, models []T) error {
	entities := make([]*core.Entity, 0, len(models))
	for _, m := range models {
		entities = append(entities, m.Unwrap())
	}
	return c.session.Batch(ctx, entities)
}

// Watch reports changes to entities of this collection. It requires a
// facade that supports watching; cached documents of changed entities are
// invalidated before the event is delivered.
func (c *Collection[T]) Watch(ctx context.Context) (<-chan core.Event, error) {
	events, err := c.session.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan core.Event)
	go func() {
		defer close(out)
		for ev := range events {
			if coll, _ := core.CollectionOf(ev.URI); coll != c.kind.Collection {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Query holds the collection filters understood by the LIMS.
type Query struct {
	Name          []string
	ProjectLimsID []string
	Type          []string
	UDF           map[string][]string
	Extra         url.Values
}

// Values encodes the query as URL parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	for _, n := range q.Name {
		v.Add("name", n)
	}
	for _, p := range q.ProjectLimsID {
		v.Add("projectlimsid", p)
	}
	for _, t := range q.Type {
		v.Add("type", t)
	}
	keys := make([]string, 0, len(q.UDF))
	for k := range q.UDF {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, val := range q.UDF[k] {
			v.Add("udf."+k, val)
		}
	}
	for k, vals := range q.Extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return v
}

// ParseFilters turns "key=value" pairs into a query. Repeated keys accept
// any of their values.
func ParseFilters(pairs []string) (url.Values, error) {
	v := url.Values{}
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q: %w", p, errMalformedFilter)
		}
		v.Add(key, val)
	}
	return v, nil
}

var errMalformedFilter = errors.New("expected key=value")
