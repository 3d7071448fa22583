// Package metrics decorates a core.Facade with Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/lims/pkg/core"
)

// Operation label values.
const (
	OpFetch        = "fetch"
	OpUpdate       = "update"
	OpBatchFetch   = "batch_fetch"
	OpList         = "list"
	OpWatch        = "watch"
	OpCheckVersion = "check_version"
)

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeNotFound     = "not_found"
	OutcomeUnauthorized = "unauthorized"
	OutcomeReadOnly     = "read_only"
	OutcomeMalformed    = "malformed"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// Collectors holds the metric vectors shared by every wrapped facade of a
// registry.
type Collectors struct {
	Requests *prometheus.CounterVec   // by op and outcome
	Duration *prometheus.HistogramVec // by op
	Batched  prometheus.Counter       // URIs requested through BatchFetch
}

// NewCollectors creates the collectors and registers them with reg. Already
// registered collectors are reused, so several facades can share a registry.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lims",
			Subsystem: "facade",
			Name:      "requests_total",
			Help:      "Total number of facade operations",
		}, []string{"op", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lims",
			Subsystem: "facade",
			Name:      "request_duration_seconds",
			Help:      "Facade operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"op"}),
		Batched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lims",
			Subsystem: "facade",
			Name:      "batch_uris_total",
			Help:      "Total number of URIs requested through batch fetches",
		}),
	}
	if reg == nil {
		return c, nil
	}

	var err error
	if c.Requests, err = register(reg, c.Requests); err != nil {
		return nil, err
	}
	if c.Duration, err = register(reg, c.Duration); err != nil {
		return nil, err
	}
	if c.Batched, err = register(reg, c.Batched); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Facade forwards every call to the wrapped facade and records it.
type Facade struct {
	inner core.Facade
	c     *Collectors
}

var (
	_ core.Facade         = (*Facade)(nil)
	_ core.Lister         = (*Facade)(nil)
	_ core.Watchable      = (*Facade)(nil)
	_ core.VersionChecker = (*Facade)(nil)
)

// Wrap instruments f, registering the collectors with reg.
func Wrap(f core.Facade, reg prometheus.Registerer) (*Facade, error) {
	c, err := NewCollectors(reg)
	if err != nil {
		return nil, err
	}
	return WrapWith(f, c), nil
}

// WrapWith instruments f with existing collectors.
func WrapWith(f core.Facade, c *Collectors) *Facade {
	return &Facade{inner: f, c: c}
}

// Unwrap returns the instrumented facade.
func (m *Facade) Unwrap() core.Facade { return m.inner }

func (m *Facade) observe(op string, start time.Time, err error) {
	m.c.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.c.Requests.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome classifies err into an outcome label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, core.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, core.ErrReadOnly):
		return OutcomeReadOnly
	case errors.Is(err, core.ErrMalformedResponse):
		return OutcomeMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	}
	return OutcomeError
}

func (m *Facade) Fetch(ctx context.Context, uri string) (doc *etree.Document, err error) {
	defer func(start time.Time) { m.observe(OpFetch, start, err) }(time.Now())
	return m.inner.Fetch(ctx, uri)
}

func (m *Facade) Update(ctx context.Context, uri string, doc *etree.Document) (err error) {
	defer func(start time.Time) { m.observe(OpUpdate, start, err) }(time.Now())
	return m.inner.Update(ctx, uri, doc)
}

func (m *Facade) BatchFetch(ctx context.Context, uris []string) (docs map[string]*etree.Document, err error) {
	defer func(start time.Time) { m.observe(OpBatchFetch, start, err) }(time.Now())
	m.c.Batched.Add(float64(len(uris)))
	return m.inner.BatchFetch(ctx, uris)
}

// List forwards to the wrapped facade when it is a core.Lister.
func (m *Facade) List(ctx context.Context, collection string, query url.Values) (entries []core.ListEntry, err error) {
	defer func(start time.Time) { m.observe(OpList, start, err) }(time.Now())
	l, ok := m.inner.(core.Lister)
	if !ok {
		return nil, fmt.Errorf("%w: list", core.ErrUnsupported)
	}
	return l.List(ctx, collection, query)
}

// Watch forwards to the wrapped facade when it is core.Watchable. Only the
// start of the watch is recorded.
func (m *Facade) Watch(ctx context.Context, pattern string) (events <-chan core.Event, err error) {
	defer func(start time.Time) { m.observe(OpWatch, start, err) }(time.Now())
	w, ok := m.inner.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("%w: watch", core.ErrUnsupported)
	}
	return w.Watch(ctx, pattern)
}

// CheckVersion forwards to the wrapped facade when it is a
// core.VersionChecker.
func (m *Facade) CheckVersion(ctx context.Context) (err error) {
	defer func(start time.Time) { m.observe(OpCheckVersion, start, err) }(time.Now())
	v, ok := m.inner.(core.VersionChecker)
	if !ok {
		return fmt.Errorf("%w: check version", core.ErrUnsupported)
	}
	return v.CheckVersion(ctx)
}
