package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/beevik/etree"

	"github.com/aretw0/lims/pkg/core"
)

// readOnly guards a facade against writes.
type readOnly struct {
	core.Facade
}

// ReadOnly wraps f so that Update fails with core.ErrReadOnly. Reads and the
// optional List, Watch and CheckVersion ports pass through.
func ReadOnly(f core.Facade) core.Facade {
	if _, ok := f.(*readOnly); ok {
		return f
	}
	return &readOnly{Facade: f}
}

func (r *readOnly) Update(ctx context.Context, uri string, doc *etree.Document) error {
	return fmt.Errorf("%w: update %s", core.ErrReadOnly, uri)
}

func (r *readOnly) List(ctx context.Context, collection string, query url.Values) ([]core.ListEntry, error) {
	l, ok := r.Facade.(core.Lister)
	if !ok {
		return nil, fmt.Errorf("%w: list", core.ErrUnsupported)
	}
	return l.List(ctx, collection, query)
}

func (r *readOnly) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	w, ok := r.Facade.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("%w: watch", core.ErrUnsupported)
	}
	return w.Watch(ctx, pattern)
}

func (r *readOnly) CheckVersion(ctx context.Context) error {
	v, ok := r.Facade.(core.VersionChecker)
	if !ok {
		return fmt.Errorf("%w: check version", core.ErrUnsupported)
	}
	return v.CheckVersion(ctx)
}

// Unwrap returns the guarded facade.
func (r *readOnly) Unwrap() core.Facade { return r.Facade }
