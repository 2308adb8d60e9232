package query

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

func TestGetMetrics_Singleton(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
}

func TestMetrics_MustRegister(t *testing.T) {
	m := GetMetrics()
	m.Init("metrics-test-register")

	registry := prometheus.NewRegistry()
	require.NotPanics(t, func() { m.MustRegister(registry) })

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["resourcesync_query_hits_total"])
	assert.True(t, names["resourcesync_query_fetches_total"])
	assert.True(t, names["resourcesync_query_evictions_total"])
}

func TestClient_Metrics(t *testing.T) {
	const tag = "metrics-test-client"
	m := GetMetrics()
	clock := newFakeClock()
	f := &countingFetcher{}
	c := newTestClient(t, f.Fetch, clock)
	ctx := context.Background()

	hits := testutil.ToFloat64(m.hitsTotal.WithLabelValues(tag))
	misses := testutil.ToFloat64(m.missesTotal.WithLabelValues(tag))
	fetches := testutil.ToFloat64(m.fetchesTotal.WithLabelValues(tag, fetchResultSuccess))
	invalidations := testutil.ToFloat64(m.invalidationsTotal.WithLabelValues(tag))

	_, err := c.Read(ctx, KeyWith(tag), ReadOptions{})
	require.NoError(t, err)
	_, err = c.Read(ctx, KeyWith(tag), ReadOptions{})
	require.NoError(t, err)
	c.Invalidate(tag)

	assert.Equal(t, hits+1, testutil.ToFloat64(m.hitsTotal.WithLabelValues(tag)))
	assert.Equal(t, misses+1, testutil.ToFloat64(m.missesTotal.WithLabelValues(tag)))
	assert.Equal(t, fetches+1, testutil.ToFloat64(m.fetchesTotal.WithLabelValues(tag, fetchResultSuccess)))
	assert.Equal(t, invalidations+1, testutil.ToFloat64(m.invalidationsTotal.WithLabelValues(tag)))
}

func TestClient_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	clock := newFakeClock()
	fail := errors.New("unavailable")
	c := newTestClient(t, func(context.Context, Key) (any, error) { return nil, fail }, clock)

	_, err := c.Read(context.Background(), KeyWith("traced"), ReadOptions{})
	require.Error(t, err)

	spans := exporter.GetSpans()
	byName := make(map[string]tracetest.SpanStub, len(spans))
	for _, s := range spans {
		byName[s.Name] = s
	}

	read, ok := byName["query.Read"]
	require.True(t, ok)
	fetch, ok := byName["query.Fetch"]
	require.True(t, ok)

	assert.Equal(t, codes.Error, read.Status.Code)
	assert.Equal(t, codes.Error, fetch.Status.Code)
	assert.Equal(t, read.SpanContext.TraceID(), fetch.SpanContext.TraceID())
	assert.Equal(t, read.SpanContext.SpanID(), fetch.Parent.SpanID())
}

func TestClient_LogsFetchFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := observability.NewZapLogger(zap.New(core))

	clock := newFakeClock()
	c := newTestClient(t, func(context.Context, Key) (any, error) {
		return nil, errors.New("unavailable")
	}, clock, WithLogger(logger))

	_, err := c.Read(context.Background(), KeyWith("logged"), ReadOptions{})
	require.Error(t, err)

	entries := logs.FilterMessage("fetch failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "logged", entries[0].ContextMap()["key"])
}
