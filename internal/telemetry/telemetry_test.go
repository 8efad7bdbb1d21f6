package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestPrometheusHandler(t *testing.T) {
	shutdown, metrics, err := InitMetrics("agent-runtime-test", "dev")
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx := context.Background()
	metrics.RecordToolCall(ctx, "calc", "add", 0.01, nil)
	metrics.RecordToolCall(ctx, "calc", "add", 0.02, errors.New("boom"))
	metrics.RecordReconnect(ctx, "calc")
	metrics.RecordResolveAttempt(ctx, "helper")

	rec := httptest.NewRecorder()
	metrics.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "agent_runtime_tool_calls_total")
	assert.Contains(t, body, "agent_runtime_tool_call_duration_bucket")
	assert.Contains(t, body, "agent_runtime_tool_reconnects_total")
	assert.Contains(t, body, "agent_runtime_resolve_attempts_total")
	assert.Contains(t, body, `tool="add"`)
}

func TestInitMetricsTwice(t *testing.T) {
	for i := 0; i < 2; i++ {
		shutdown, _, err := InitMetrics("agent-runtime-test", "dev")
		require.NoError(t, err, "each call uses its own registry")
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordToolCall(context.Background(), "s", "t", 1, nil)
	m.RecordReconnect(context.Background(), "s")
	m.RecordResolveAttempt(context.Background(), "a")
}

func TestTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "agent-runtime-test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "resolve", attribute.String("agent", "helper"))
	EndSpan(span, nil)
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"resolve"`)

	shutdown, err = InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestTracingOTLP(t *testing.T) {
	var exports atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/traces", r.URL.Path)
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		exports.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "agent-runtime-test",
		Exporter:    ExporterOTLP,
		Endpoint:    collector.URL + "/v1/traces",
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "resolve")
	EndSpan(span, nil)
	require.NoError(t, shutdown(context.Background()))
	assert.GreaterOrEqual(t, exports.Load(), int32(1))
}

func TestTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, `unknown trace exporter "zipkin"`)
}
