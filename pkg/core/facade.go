package core

import (
	"context"
	"net/url"

	"github.com/beevik/etree"
)

// Facade is the transport port of the binding layer. Implementations talk to
// the LIMS server, or to anything that can stand in for it, and exchange
// whole documents addressed by URI.
type Facade interface {
	// Fetch retrieves the document stored at uri.
	Fetch(ctx context.Context, uri string) (*etree.Document, error)

	// Update replaces the document stored at uri.
	Update(ctx context.Context, uri string, doc *etree.Document) error

	// BatchFetch retrieves several documents in one round trip where the
	// backend allows it. The result is keyed by URI. Missing resources are
	// simply absent from the map.
	BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error)
}

// ListEntry is one row of a collection listing.
type ListEntry struct {
	ID      string
	URI     string
	Element *etree.Element // the listing element, when the backend returns one
}

// Lister defines an interface for facades that can enumerate a collection.
type Lister interface {
	// List returns the entries of collection matching query. The meaning of
	// the query keys is left to the implementation ("name", "projectlimsid"
	// and "udf.<Name>" are understood by all bundled adapters).
	List(ctx context.Context, collection string, query url.Values) ([]ListEntry, error)
}

// Watchable defines an interface for facades that can report changes.
type Watchable interface {
	// Watch observes documents whose collection-relative path matches pattern.
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// VersionChecker is implemented by facades able to ask the server which API
// version it speaks.
type VersionChecker interface {
	CheckVersion(ctx context.Context) error
}

type contextKey string

// ChangeReasonKey is the context key for passing change reasons (commit
// messages) to facades that record history.
const ChangeReasonKey contextKey = "change_reason"
