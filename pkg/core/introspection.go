package core

import (
	"sort"

	"github.com/aretw0/introspection"
)

// SessionState exposes internal state for observability.
type SessionState struct {
	BaseURI    string         `json:"base_uri"`
	FacadeType string         `json:"facade_type"`
	Entities   int            `json:"entities"`
	Fetched    int            `json:"fetched"`
	ByKind     map[string]int `json:"by_kind"`
	Kinds      []string       `json:"kinds"`
	Watching   bool           `json:"watching"`
}

// State implements introspection.Introspectable.
func (s *Session) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facadeType := "unknown"
	if s.facade != nil {
		facadeType = "facade"
		if comp, ok := s.facade.(introspection.Component); ok {
			facadeType = comp.ComponentType()
		}
	}

	st := SessionState{
		BaseURI:    s.base,
		FacadeType: facadeType,
		Entities:   len(s.entities),
		ByKind:     make(map[string]int),
		Watching:   s.watching,
	}
	for _, e := range s.entities {
		if e.Fetched() {
			st.Fetched++
		}
		st.ByKind[e.kind.Name]++
	}
	for k := range st.ByKind {
		st.Kinds = append(st.Kinds, k)
	}
	sort.Strings(st.Kinds)
	return st
}

// ComponentType implements introspection.Component.
func (s *Session) ComponentType() string {
	return "session"
}

var _ introspection.Introspectable = (*Session)(nil)
var _ introspection.Component = (*Session)(nil)
