package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/lims/pkg/core"
)

// New opens the configured backend and returns a session over it.
//
//	s, err := lims.New(ctx, "https://lims.example.org/api/v2", lims.WithCredentials("api", "secret"))
func New(ctx context.Context, baseURI string, opts ...Option) (*core.Session, error) {
	if baseURI == "" {
		return nil, fmt.Errorf("base uri required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	f, err := open(ctx, baseURI, o)
	if err != nil {
		return nil, err
	}
	if o.flag("check_version") {
		if v, ok := f.(core.VersionChecker); ok {
			if err := v.CheckVersion(ctx); err != nil && !errors.Is(err, core.ErrUnsupported) {
				return nil, err
			}
		}
	}
	return core.NewSession(f, baseURI, core.WithLogger(o.logger)), nil
}
