// Package telemetry sets up OpenTelemetry metrics with a Prometheus exporter
// and optional tracing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Namespace prefixes every metric name.
const Namespace = "agent_runtime"

// ShutdownFunc flushes and stops a provider.
type ShutdownFunc func(context.Context) error

// Metrics holds the instruments used across the runtime.
type Metrics struct {
	Requests        metric.Int64Counter
	ErrorCount      metric.Int64Counter
	RequestDuration metric.Float64Histogram

	ToolCalls        metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
	ToolReconnects   metric.Int64Counter

	ResolveAttempts metric.Int64Counter

	registry *prometheus.Registry
}

// InitMetrics creates a meter provider backed by a dedicated Prometheus registry.
func InitMetrics(serviceName, serviceVersion string) (ShutdownFunc, *Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		return nil, nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	meter := provider.Meter(Namespace)
	m := &Metrics{registry: registry}

	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	m.Requests, err = meter.Int64Counter(Namespace+".http.requests",
		metric.WithDescription("Number of HTTP requests handled"))
	record(err)
	m.ErrorCount, err = meter.Int64Counter(Namespace+".http.errors",
		metric.WithDescription("Number of HTTP requests answered with a 4xx or 5xx status"))
	record(err)
	m.RequestDuration, err = meter.Float64Histogram(Namespace+".http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"))
	record(err)
	m.ToolCalls, err = meter.Int64Counter(Namespace+".tool.calls",
		metric.WithDescription("Number of remote tool calls"))
	record(err)
	m.ToolCallDuration, err = meter.Float64Histogram(Namespace+".tool.call.duration",
		metric.WithDescription("Remote tool call duration in seconds"))
	record(err)
	m.ToolReconnects, err = meter.Int64Counter(Namespace+".tool.reconnects",
		metric.WithDescription("Number of discarded and reopened tool server sessions"))
	record(err)
	m.ResolveAttempts, err = meter.Int64Counter(Namespace+".resolve.attempts",
		metric.WithDescription("Number of remote agent card fetch attempts"))
	record(err)

	if err := errors.Join(errs...); err != nil {
		return nil, nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	return provider.Shutdown, m, nil
}

// PrometheusHandler serves the metrics registry.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordToolCall records one tool call. A nil receiver is a no-op.
func (m *Metrics) RecordToolCall(ctx context.Context, server, tool string, seconds float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.Bool("error", err != nil),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolCallDuration.Record(ctx, seconds, attrs)
}

// RecordReconnect records a discarded tool server session. A nil receiver is a no-op.
func (m *Metrics) RecordReconnect(ctx context.Context, server string) {
	if m == nil {
		return
	}
	m.ToolReconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("server", server)))
}

// RecordResolveAttempt records one agent card fetch attempt. A nil receiver is a no-op.
func (m *Metrics) RecordResolveAttempt(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.ResolveAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}
