// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge so everything
// stays scrapeable via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/teangalab/beal"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text transcription latency,
	// including local transcoding.
	TranscriptionDuration metric.Float64Histogram

	// ProviderRequests counts speech/diarization provider calls. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// WebhookEvents counts diarization webhook deliveries. Use with
	// attribute:
	//   attribute.String("outcome", "accepted"|"rejected")
	WebhookEvents metric.Int64Counter

	// EntriesCreated counts dictionary entries created by diarization.
	EntriesCreated metric.Int64Counter

	// ActiveSessions tracks the number of conversation sessions not in the
	// idle state.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Synthesis
// usually lands under a second; transcription uploads can take much longer.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("beal.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("beal.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription including transcoding."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("beal.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("beal.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.WebhookEvents, err = m.Int64Counter("beal.webhook.events",
		metric.WithDescription("Total diarization webhook deliveries by outcome."),
	); err != nil {
		return nil, err
	}
	if met.EntriesCreated, err = m.Int64Counter("beal.entries.created",
		metric.WithDescription("Total dictionary entries created by diarization."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("beal.active_sessions",
		metric.WithDescription("Number of conversation sessions not in the idle state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("beal.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordEntriesCreated counts entries materialised from one diarization
// batch. Zero-entry batches (pure redeliveries) add nothing.
func (m *Metrics) RecordEntriesCreated(ctx context.Context, n int) {
	if n > 0 {
		m.EntriesCreated.Add(ctx, int64(n))
	}
}

// RecordSessionActive moves the active-session gauge as sessions leave
// (+1) or return to (-1) the idle state.
func (m *Metrics) RecordSessionActive(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}

// RecordWebhookEvent records one diarization webhook delivery.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.WebhookEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
