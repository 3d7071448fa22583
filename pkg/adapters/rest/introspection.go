package rest

import "github.com/aretw0/introspection"

// ClientState exposes internal state for observability.
type ClientState struct {
	BaseURI  string `json:"base_uri"`
	Version  string `json:"version"`
	Username string `json:"username,omitempty"`
	Requests int64  `json:"requests"`
	Failures int64  `json:"failures"`
}

// State implements introspection.Introspectable.
func (c *Client) State() any {
	return ClientState{
		BaseURI:  c.base,
		Version:  c.version,
		Username: c.username,
		Requests: c.requests.Load(),
		Failures: c.failures.Load(),
	}
}

// ComponentType implements introspection.Component.
func (c *Client) ComponentType() string {
	return "rest"
}

var _ introspection.Introspectable = (*Client)(nil)
var _ introspection.Component = (*Client)(nil)
