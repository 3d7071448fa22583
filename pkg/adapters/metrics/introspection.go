package metrics

import "github.com/aretw0/introspection"

// State reports the state of the wrapped facade when it exposes one.
func (m *Facade) State() any {
	if in, ok := m.inner.(introspection.Introspectable); ok {
		return in.State()
	}
	return nil
}

// ComponentType implements introspection.Component.
func (m *Facade) ComponentType() string {
	if c, ok := m.inner.(introspection.Component); ok {
		return "metrics+" + c.ComponentType()
	}
	return "metrics"
}

var _ introspection.Introspectable = (*Facade)(nil)
var _ introspection.Component = (*Facade)(nil)
