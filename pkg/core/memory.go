package core

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/beevik/etree"
)

// MemoryFacade is an in-memory Facade keyed by URI. Documents are copied on
// the way in and out, like they would be over the wire. It counts calls so
// tests can assert on round trips.
type MemoryFacade struct {
	mu      sync.Mutex
	docs    map[string]*etree.Document
	fetches int
	batches int
	updates int
}

func NewMemoryFacade() *MemoryFacade {
	return &MemoryFacade{docs: make(map[string]*etree.Document)}
}

// Add stores doc at uri.
func (m *MemoryFacade) Add(uri string, doc *etree.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[uri] = doc.Copy()
}

// AddXML parses raw and stores it at uri.
func (m *MemoryFacade) AddXML(uri, raw string) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	m.Add(uri, doc)
	return nil
}

func (m *MemoryFacade) Fetch(ctx context.Context, uri string) (*etree.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	doc, ok := m.docs[StripQuery(uri)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return doc.Copy(), nil
}

func (m *MemoryFacade) Update(ctx context.Context, uri string, doc *etree.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	uri = StripQuery(uri)
	if _, ok := m.docs[uri]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	m.docs[uri] = doc.Copy()
	return nil
}

func (m *MemoryFacade) BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	out := make(map[string]*etree.Document, len(uris))
	for _, uri := range uris {
		if doc, ok := m.docs[StripQuery(uri)]; ok {
			out[uri] = doc.Copy()
		}
	}
	return out, nil
}

// List implements Lister. Entries carry a copy of the stored root element.
func (m *MemoryFacade) List(ctx context.Context, collection string, query url.Values) ([]ListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ListEntry
	for uri, doc := range m.docs {
		coll, id := CollectionOf(uri)
		if coll != collection || !MatchesQuery(doc.Root(), query) {
			continue
		}
		out = append(out, ListEntry{ID: id, URI: uri, Element: doc.Copy().Root()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

// Stored returns a copy of the document stored at uri.
func (m *MemoryFacade) Stored(uri string) (*etree.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[uri]
	if !ok {
		return nil, false
	}
	return doc.Copy(), true
}

// Calls returns the number of Fetch, BatchFetch and Update calls so far.
func (m *MemoryFacade) Calls() (fetches, batches, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches, m.batches, m.updates
}

func (m *MemoryFacade) ComponentType() string { return "memory" }
