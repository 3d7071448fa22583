package s3

import "github.com/aretw0/introspection"

// StoreState exposes internal state for observability.
type StoreState struct {
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix"`
	Endpoint string `json:"endpoint,omitempty"`
	ReadOnly bool   `json:"read_only"`
	Gets     int64  `json:"gets"`
	Puts     int64  `json:"puts"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	return StoreState{
		Bucket:   s.cfg.Bucket,
		Prefix:   s.cfg.Prefix,
		Endpoint: s.cfg.Endpoint,
		ReadOnly: s.cfg.ReadOnly,
		Gets:     s.gets.Load(),
		Puts:     s.puts.Load(),
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "s3"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
