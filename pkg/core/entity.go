package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/beevik/etree"
)

// Kind describes a concrete resource type of the LIMS: where its documents
// live and which fields it exposes.
type Kind struct {
	// Name is the kind name used in identity keys ("Sample").
	Name string
	// Collection is the URI path segment of the resource collection ("samples").
	Collection string
	// Tag is the local name of the document root element ("sample").
	Tag string
	// Fields maps field names to their bindings.
	Fields map[string]Binding
	// Parse runs after every successful fetch. Nil means no post-processing.
	Parse func(*Entity) error
}

func (k *Kind) String() string { return k.Name }

// Field returns the binding declared for name.
func (k *Kind) Field(name string) (Binding, bool) {
	b, ok := k.Fields[name]
	return b, ok
}

// FieldNames lists the declared field names in sorted order.
func (k *Kind) FieldNames() []string {
	names := make([]string, 0, len(k.Fields))
	for n := range k.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Key returns the identity key of the entity of this kind with identifier id.
func (k *Kind) Key(id string) string {
	return k.Name + " " + id
}

// Entity is a lazy proxy for one remote resource. Its document is fetched
// on first access through the owning Session and shared by every view of it.
//
// Entities are created by a Session and must not be copied. Swapping the
// document is safe across goroutines; editing its tree is not.
type Entity struct {
	kind    *Kind
	id      string
	session *Session

	mu  sync.RWMutex
	doc *etree.Document
}

func (e *Entity) Kind() *Kind               { return e.kind }
func (e *Entity) ID() string                { return e.id }
func (e *Entity) Session() *Session         { return e.session }
func (e *Entity) Key() string               { return e.kind.Key(e.id) }
func (e *Entity) String() string            { return e.Key() }
func (e *Entity) Fetched() bool             { return e.Document() != nil }
func (e *Entity) URI() string               { return e.session.URI(e.kind, e.id) }

// Document returns the cached document, or nil when not fetched yet.
func (e *Entity) Document() *etree.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// Unwrap returns e itself. Typed wrappers embedding *Entity inherit it,
// which lets generic code reach the underlying entity.
func (e *Entity) Unwrap() *Entity { return e }

// Root returns the document root element, or nil when not fetched yet.
func (e *Entity) Root() *etree.Element {
	doc := e.Document()
	if doc == nil {
		return nil
	}
	return doc.Root()
}

// Fetch ensures the document is present. It is a no-op when the document
// is already loaded, unless force is set.
func (e *Entity) Fetch(ctx context.Context, force bool) error {
	_, err := e.load(ctx, force)
	return err
}

// load is Fetch returning the root it settled on, so that callers work on
// one document even if the entity is invalidated meanwhile.
func (e *Entity) load(ctx context.Context, force bool) (*etree.Element, error) {
	if !force {
		if root := e.Root(); root != nil {
			return root, nil
		}
	}
	doc, err := e.session.facade.Fetch(ctx, e.URI())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Key(), err)
	}
	if err := e.setDocument(doc); err != nil {
		return nil, err
	}
	return doc.Root(), nil
}

// invalidate drops the cached document.
func (e *Entity) invalidate() {
	e.mu.Lock()
	e.doc = nil
	e.mu.Unlock()
}

func (e *Entity) setDocument(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("%s: %w: empty document", e.Key(), ErrMalformedResponse)
	}
	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()
	if e.kind.Parse != nil {
		if err := e.kind.Parse(e); err != nil {
			return fmt.Errorf("parse %s: %w", e.Key(), err)
		}
	}
	return nil
}

// Put sends the current document back as an update of the resource.
func (e *Entity) Put(ctx context.Context) error {
	if e.id == "" {
		return fmt.Errorf("put %s: %w", e.kind.Name, ErrNoIdentifier)
	}
	doc := e.Document()
	if doc == nil {
		return fmt.Errorf("put %s: %w: document was never fetched", e.Key(), ErrMissingElement)
	}
	if err := e.session.facade.Update(ctx, e.URI(), doc); err != nil {
		return fmt.Errorf("put %s: %w", e.Key(), err)
	}
	e.session.logger.Debug("entity updated", "key", e.Key())
	return nil
}

// Read returns the current value of a declared field, fetching the entity
// document first if needed. Absent values are returned as nil.
func (e *Entity) Read(ctx context.Context, field string) (any, error) {
	b, ok := e.kind.Fields[field]
	if !ok {
		return nil, e.fieldError(field, ErrUnknownField)
	}
	root, err := e.load(ctx, false)
	if err != nil {
		return nil, err
	}
	v, err := b.get(e, root)
	if err != nil {
		return nil, e.fieldError(field, err)
	}
	return v, nil
}

// Write sets a declared field in the local document. Nothing is sent to the
// server until Put is called.
func (e *Entity) Write(ctx context.Context, field string, value any) error {
	b, ok := e.kind.Fields[field]
	if !ok {
		return e.fieldError(field, ErrUnknownField)
	}
	root, err := e.load(ctx, false)
	if err != nil {
		return err
	}
	if err := b.set(e, root, value); err != nil {
		return e.fieldError(field, err)
	}
	return nil
}

func (e *Entity) fieldError(field string, err error) error {
	return &FieldError{Kind: e.kind.Name, ID: e.id, Field: field, Err: err}
}

// The accessors below are typed shortcuts over Read. They return ok=false
// when the backing element is absent.

func (e *Entity) Text(ctx context.Context, field string) (string, bool, error) {
	v, err := e.Read(ctx, field)
	if err != nil || v == nil {
		return "", false, err
	}
	s, ok := v.(string)
	if !ok {
		return "", false, e.fieldError(field, fmt.Errorf("%w: %T is not a string", ErrTypeMismatch, v))
	}
	return s, true, nil
}

func (e *Entity) Int(ctx context.Context, field string) (int, bool, error) {
	v, err := e.Read(ctx, field)
	if err != nil || v == nil {
		return 0, false, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, false, e.fieldError(field, fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, v))
	}
	return i, true, nil
}

func (e *Entity) Strings(ctx context.Context, field string) ([]string, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[[]string](e, field, v)
}

func (e *Entity) StringMap(ctx context.Context, field string) (map[string]string, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[map[string]string](e, field, v)
}

func (e *Entity) Ref(ctx context.Context, field string) (*Entity, bool, error) {
	v, err := e.Read(ctx, field)
	if err != nil || v == nil {
		return nil, false, err
	}
	ref, err := as[*Entity](e, field, v)
	return ref, err == nil, err
}

func (e *Entity) Refs(ctx context.Context, field string) ([]*Entity, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[[]*Entity](e, field, v)
}

func (e *Entity) Dimension(ctx context.Context, field string) (Dimension, bool, error) {
	v, err := e.Read(ctx, field)
	if err != nil || v == nil {
		return Dimension{}, false, err
	}
	d, err := as[Dimension](e, field, v)
	return d, err == nil, err
}

func (e *Entity) Location(ctx context.Context, field string) (Location, bool, error) {
	v, err := e.Read(ctx, field)
	if err != nil || v == nil {
		return Location{}, false, err
	}
	l, err := as[Location](e, field, v)
	return l, err == nil, err
}

func (e *Entity) Placements(ctx context.Context, field string) (map[string]*Entity, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[map[string]*Entity](e, field, v)
}

func (e *Entity) ExternalIDs(ctx context.Context, field string) ([]ExternalID, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[[]ExternalID](e, field, v)
}

// UDFs returns a fresh view over the user-defined fields bound to field,
// which must be a UDF or UDT binding.
func (e *Entity) UDFs(ctx context.Context, field string) (*UDFDictionary, error) {
	v, err := e.Read(ctx, field)
	if err != nil {
		return nil, err
	}
	return as[*UDFDictionary](e, field, v)
}

func as[T any](e *Entity, field string, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, e.fieldError(field, fmt.Errorf("%w: got %T, want %T", ErrTypeMismatch, v, zero))
	}
	return t, nil
}

// AddExternalID appends an external link to the list bound to field, which
// must be an external-ids binding.
func (e *Entity) AddExternalID(ctx context.Context, field string, id ExternalID) error {
	b, ok := e.kind.Fields[field]
	if !ok {
		return e.fieldError(field, ErrUnknownField)
	}
	if b.Variant != VariantExternalIDs {
		return e.fieldError(field, fmt.Errorf("%w: %s binding", ErrReadOnlyField, b.Variant))
	}
	root, err := e.load(ctx, false)
	if err != nil {
		return err
	}
	el := createChild(root, b.Tag)
	el.CreateAttr("id", id.ID)
	el.CreateAttr("uri", id.URI)
	return nil
}
