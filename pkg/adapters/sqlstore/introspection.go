package sqlstore

import "github.com/aretw0/introspection"

// StoreState exposes internal state for observability.
type StoreState struct {
	Driver     string `json:"driver"`
	BaseURI    string `json:"base_uri"`
	ReadOnly   bool   `json:"read_only"`
	Reads      int64  `json:"reads"`
	Writes     int64  `json:"writes"`
	OpenConns  int    `json:"open_conns"`
	InUseConns int    `json:"in_use_conns"`
	WaitCount  int64  `json:"wait_count"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	stats := s.db.Stats()
	return StoreState{
		Driver:     s.cfg.Driver,
		BaseURI:    s.cfg.BaseURI,
		ReadOnly:   s.cfg.ReadOnly,
		Reads:      s.reads.Load(),
		Writes:     s.writes.Load(),
		OpenConns:  stats.OpenConnections,
		InUseConns: stats.InUse,
		WaitCount:  stats.WaitCount,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sql"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
