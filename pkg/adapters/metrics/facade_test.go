package metrics_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/lims/pkg/adapters/metrics"
	"github.com/aretw0/lims/pkg/core"
)

const base = "https://lims.test/api/v2"

func newFacade(t *testing.T) (*metrics.Facade, *core.MemoryFacade, *prometheus.Registry) {
	t.Helper()
	mem := core.NewMemoryFacade()
	require.NoError(t, mem.AddXML(base+"/samples/S1", `<smp:sample xmlns:smp="http://genologics.com/ri/sample"><name>one</name></smp:sample>`))
	reg := prometheus.NewRegistry()
	f, err := metrics.Wrap(mem, reg)
	require.NoError(t, err)
	return f, mem, reg
}

func TestWrapCountsOutcomes(t *testing.T) {
	f, _, reg := newFacade(t)
	ctx := context.Background()

	doc, err := f.Fetch(ctx, base+"/samples/S1")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, base+"/samples/S2")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, f.Update(ctx, base+"/samples/S1", doc))
	_, err = f.BatchFetch(ctx, []string{base + "/samples/S1", base + "/samples/S2"})
	require.NoError(t, err)

	expected := `
# HELP lims_facade_requests_total Total number of facade operations
# TYPE lims_facade_requests_total counter
lims_facade_requests_total{op="batch_fetch",outcome="ok"} 1
lims_facade_requests_total{op="fetch",outcome="not_found"} 1
lims_facade_requests_total{op="fetch",outcome="ok"} 1
lims_facade_requests_total{op="update",outcome="ok"} 1
# HELP lims_facade_batch_uris_total Total number of URIs requested through batch fetches
# TYPE lims_facade_batch_uris_total counter
lims_facade_batch_uris_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"lims_facade_requests_total", "lims_facade_batch_uris_total"))
	n, err := testutil.GatherAndCount(reg, "lims_facade_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWrapSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := metrics.Wrap(core.NewMemoryFacade(), reg)
	require.NoError(t, err)
	b, err := metrics.Wrap(core.NewMemoryFacade(), reg)
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = a.Fetch(ctx, base+"/samples/X")
	_, _ = b.Fetch(ctx, base+"/samples/X")

	c, err := metrics.NewCollectors(reg)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Requests.WithLabelValues(metrics.OpFetch, metrics.OutcomeNotFound)))
}

func TestWrapForwardsOptionalPorts(t *testing.T) {
	f, _, reg := newFacade(t)
	ctx := context.Background()

	entries, err := f.List(ctx, "samples", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.Watch(ctx, "**")
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.ErrorIs(t, f.CheckVersion(ctx), core.ErrUnsupported)

	c, err := metrics.NewCollectors(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Requests.WithLabelValues(metrics.OpWatch, metrics.OutcomeError)))
	assert.Equal(t, "metrics+memory", f.ComponentType())
}

func TestSessionThroughMetrics(t *testing.T) {
	f, mem, reg := newFacade(t)
	kind := &core.Kind{Name: "Sample", Collection: "samples", Tag: "sample", Fields: map[string]core.Binding{
		"name": core.StringField("name"),
	}}
	s := core.NewSession(f, base)
	ctx := context.Background()

	e := s.Instance(kind, "S1")
	for i := 0; i < 3; i++ {
		name, _, err := e.Text(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "one", name)
	}

	fetches, _, _ := mem.Calls()
	assert.Equal(t, 1, fetches)
	c, _ := metrics.NewCollectors(reg)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Requests.WithLabelValues(metrics.OpFetch, metrics.OutcomeOK)))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, metrics.Outcome(nil))
	assert.Equal(t, metrics.OutcomeUnauthorized, metrics.Outcome(core.ErrUnauthorized))
	assert.Equal(t, metrics.OutcomeCanceled, metrics.Outcome(context.Canceled))
	assert.Equal(t, metrics.OutcomeError, metrics.Outcome(core.ErrTransport))
}
