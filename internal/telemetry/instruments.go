// =============================================================================
// PromptGate OTLP HTTP Instruments
// =============================================================================
// Request-level instruments on the global MeterProvider, exported through the
// OTLP pipeline configured by Init.
// =============================================================================

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/BaSui01/promptgate"

// HTTPMetrics bundles the OTel instruments recorded per HTTP request.
// All methods tolerate a nil receiver.
type HTTPMetrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the request instruments on the global MeterProvider.
// Call after Init; on a noop provider the instruments exist but export nothing.
func NewHTTPMetrics() (*HTTPMetrics, error) {
	meter := otel.Meter(instrumentationName)

	m := &HTTPMetrics{}
	var err error

	m.requestTotal, err = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	m.requestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	m.activeRequests, err = meter.Int64UpDownCounter("http.server.request.active",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}

	return m, nil
}

// AddActive adjusts the in-flight request gauge.
func (m *HTTPMetrics) AddActive(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, delta)
}

// RecordRequest records one completed request.
func (m *HTTPMetrics) RecordRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.response.status_code", status),
	)
	m.requestTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
}
