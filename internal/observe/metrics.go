// Package observe provides application-wide observability primitives for
// Cantus: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Cantus metrics.
const meterName = "github.com/cantus-audio/cantus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// EstimationDuration tracks per-frame pitch estimation latency. Use
	// with attribute: attribute.String("algorithm", ...)
	EstimationDuration metric.Float64Histogram

	// BatchDuration tracks end-to-end latency of analysing one buffered
	// batch, from decode to pitch_update emission.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// FramesAnalyzed counts analysis frames run through the estimator.
	// Use with attributes:
	//   attribute.String("mode", ...), attribute.Bool("voiced", ...)
	FramesAnalyzed metric.Int64Counter

	// ComparisonsEmitted counts user samples matched against the
	// reference curve.
	ComparisonsEmitted metric.Int64Counter

	// MalformedMessages counts inbound session messages that failed to
	// parse or validate. Use with attribute: attribute.String("reason", ...)
	MalformedMessages metric.Int64Counter

	// DroppedSamples counts audio samples discarded by the bounded
	// session buffer under backpressure.
	DroppedSamples metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live analysis sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-frame DSP work up to whole-batch analysis.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EstimationDuration, err = m.Float64Histogram("cantus.estimation.duration",
		metric.WithDescription("Latency of single-frame pitch estimation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("cantus.batch.duration",
		metric.WithDescription("Latency of analysing one buffered audio batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesAnalyzed, err = m.Int64Counter("cantus.frames.analyzed",
		metric.WithDescription("Total analysis frames by framing mode and voicing."),
	); err != nil {
		return nil, err
	}
	if met.ComparisonsEmitted, err = m.Int64Counter("cantus.comparisons.emitted",
		metric.WithDescription("Total user pitch samples matched against the reference curve."),
	); err != nil {
		return nil, err
	}
	if met.MalformedMessages, err = m.Int64Counter("cantus.session.malformed_messages",
		metric.WithDescription("Total malformed inbound session messages by reason."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSamples, err = m.Int64Counter("cantus.buffer.dropped_samples",
		metric.WithDescription("Total audio samples dropped by the bounded session buffer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("cantus.active_sessions",
		metric.WithDescription("Number of live analysis sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cantus.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one analysed frame with the standard attribute set.
func (m *Metrics) RecordFrame(ctx context.Context, mode string, voiced bool) {
	m.FramesAnalyzed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.Bool("voiced", voiced),
		),
	)
}

// RecordMalformedMessage records one rejected inbound message.
func (m *Metrics) RecordMalformedMessage(ctx context.Context, reason string) {
	m.MalformedMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
