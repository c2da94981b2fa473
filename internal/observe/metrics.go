// Package observe provides application-wide observability primitives for
// contexto: OpenTelemetry metrics, distributed tracing, and structured
// logging that ties them together.
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

// meterName is the instrumentation scope name used for all contexto metrics.
const meterName = "github.com/ofim/contexto"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AssemblyDuration tracks end-to-end context assembly latency.
	AssemblyDuration metric.Float64Histogram

	// CompletionDuration tracks session-completion transaction latency.
	CompletionDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding API call latency.
	EmbeddingDuration metric.Float64Histogram

	// --- Counters ---

	// LayerFailures counts layer fetches that degraded to an absent section.
	// Use with attribute: attribute.String("layer", ...)
	LayerFailures metric.Int64Counter

	// MemoryRetrievals counts memory retrieval runs. Use with attribute:
	//   attribute.String("strategy", ...)
	MemoryRetrievals metric.Int64Counter

	// MemoryTruncations counts assemblies whose memory section was cut to fit
	// the token budget.
	MemoryTruncations metric.Int64Counter

	// PreteriteSurfacings counts passed-over memories that resurfaced into a
	// prompt.
	PreteriteSurfacings metric.Int64Counter

	// DriftAlerts counts persisted voice-drift alerts. Use with attribute:
	//   attribute.String("severity", ...)
	DriftAlerts metric.Int64Counter

	// SoulFailures counts soul integrity check failures. Use with attribute:
	//   attribute.String("persona", ...)
	SoulFailures metric.Int64Counter

	// SessionCompletions counts session-completion outcomes. Use with
	// attribute: attribute.String("status", ...)
	SessionCompletions metric.Int64Counter

	// Fallbacks counts assemblies that degraded to the minimal fallback prompt.
	Fallbacks metric.Int64Counter

	// OplogDrops counts operator-log entries discarded because the async
	// buffer was full.
	OplogDrops metric.Int64Counter

	// EmbeddingRequests counts embedding API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	EmbeddingRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveAssemblies tracks the number of assembly calls currently in flight.
	ActiveAssemblies metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for assembly latencies dominated by parallel database fetches.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AssemblyDuration, err = m.Float64Histogram("contexto.assembly.duration",
		metric.WithDescription("End-to-end context assembly latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("contexto.session.completion.duration",
		metric.WithDescription("Session-completion transaction latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("contexto.embedding.duration",
		metric.WithDescription("Embedding API call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LayerFailures, err = m.Int64Counter("contexto.layer.failures",
		metric.WithDescription("Layer fetches degraded to an absent section, by layer."),
	); err != nil {
		return nil, err
	}
	if met.MemoryRetrievals, err = m.Int64Counter("contexto.memory.retrievals",
		metric.WithDescription("Memory retrieval runs by strategy."),
	); err != nil {
		return nil, err
	}
	if met.MemoryTruncations, err = m.Int64Counter("contexto.memory.truncations",
		metric.WithDescription("Assemblies whose memory section was cut to fit the token budget."),
	); err != nil {
		return nil, err
	}
	if met.PreteriteSurfacings, err = m.Int64Counter("contexto.preterite.surfacings",
		metric.WithDescription("Passed-over memories that resurfaced into a prompt."),
	); err != nil {
		return nil, err
	}
	if met.DriftAlerts, err = m.Int64Counter("contexto.drift.alerts",
		metric.WithDescription("Persisted voice-drift alerts by severity."),
	); err != nil {
		return nil, err
	}
	if met.SoulFailures, err = m.Int64Counter("contexto.soul.failures",
		metric.WithDescription("Soul integrity check failures by persona."),
	); err != nil {
		return nil, err
	}
	if met.SessionCompletions, err = m.Int64Counter("contexto.session.completions",
		metric.WithDescription("Session-completion outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("contexto.assembly.fallbacks",
		metric.WithDescription("Assemblies that degraded to the minimal fallback prompt."),
	); err != nil {
		return nil, err
	}
	if met.OplogDrops, err = m.Int64Counter("contexto.oplog.drops",
		metric.WithDescription("Operator-log entries discarded because the async buffer was full."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingRequests, err = m.Int64Counter("contexto.embedding.requests",
		metric.WithDescription("Embedding API calls by provider and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAssemblies, err = m.Int64UpDownCounter("contexto.assembly.active",
		metric.WithDescription("Assembly calls currently in flight."),
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

// RecordLayerFailure is a convenience method that counts a degraded layer
// fetch.
func (m *Metrics) RecordLayerFailure(ctx context.Context, layer string) {
	m.LayerFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("layer", layer)),
	)
}

// RecordRetrieval is a convenience method that counts a memory retrieval run
// with the strategy that actually served it.
func (m *Metrics) RecordRetrieval(ctx context.Context, strategy string) {
	m.MemoryRetrievals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordDriftAlert is a convenience method that counts a persisted drift
// alert.
func (m *Metrics) RecordDriftAlert(ctx context.Context, severity string) {
	m.DriftAlerts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("severity", severity)),
	)
}

// RecordSoulFailure is a convenience method that counts a failed soul
// integrity check.
func (m *Metrics) RecordSoulFailure(ctx context.Context, persona string) {
	m.SoulFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("persona", persona)),
	)
}

// RecordSessionCompletion is a convenience method that counts a
// session-completion outcome.
func (m *Metrics) RecordSessionCompletion(ctx context.Context, status string) {
	m.SessionCompletions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEmbeddingRequest is a convenience method that counts an embedding API
// call.
func (m *Metrics) RecordEmbeddingRequest(ctx context.Context, provider, status string) {
	m.EmbeddingRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
