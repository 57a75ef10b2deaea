// Package observe provides application-wide observability primitives for
// vocalbooth: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// The audio thread never records metrics itself. The engine accumulates
// counters atomically and the application's poll loop forwards them here.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocalbooth metrics.
const meterName = "github.com/MrWong99/vocalbooth"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio pipeline ---

	// FrameDuration tracks the processing time of one audio frame.
	FrameDuration metric.Float64Histogram

	// Frames counts processed audio frames.
	Frames metric.Int64Counter

	// DeadlineMisses counts frames whose processing took longer than the
	// frame's playback duration.
	DeadlineMisses metric.Int64Counter

	// Corrections counts frames where pitch correction was applied.
	Corrections metric.Int64Counter

	// ClampedSamples counts output samples limited to [-1, 1].
	ClampedSamples metric.Int64Counter

	// VoiceActiveFrames counts frames with the voice gate open.
	VoiceActiveFrames metric.Int64Counter

	// NoiseLevel reports the tracked noise floor.
	NoiseLevel metric.Float64Gauge

	// --- Errors ---

	// DetectorErrors counts failed pitch detector calls.
	DetectorErrors metric.Int64Counter

	// BreakerTrips counts circuit breaker openings. Use with attribute:
	//   attribute.String("breaker", ...)
	BreakerTrips metric.Int64Counter

	// --- Control ---

	// ParamUpdates counts parameter entries by source and status. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", ...)
	ParamUpdates metric.Int64Counter

	// LiveClients tracks connected websocket clients.
	LiveClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for the
// per-frame processing time. A 256-sample frame at 48 kHz lasts 5.3 ms.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for HTTP
// requests.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("vocalbooth.frame.duration",
		metric.WithDescription("Processing time of one audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("vocalbooth.frames",
		metric.WithDescription("Total processed audio frames."),
	); err != nil {
		return nil, err
	}
	if met.DeadlineMisses, err = m.Int64Counter("vocalbooth.frame.deadline_misses",
		metric.WithDescription("Frames that took longer to process than to play."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("vocalbooth.corrections",
		metric.WithDescription("Frames with pitch correction applied."),
	); err != nil {
		return nil, err
	}
	if met.ClampedSamples, err = m.Int64Counter("vocalbooth.mixer.clamped_samples",
		metric.WithDescription("Output samples limited to the [-1, 1] range."),
	); err != nil {
		return nil, err
	}
	if met.VoiceActiveFrames, err = m.Int64Counter("vocalbooth.voice_active_frames",
		metric.WithDescription("Frames with the voice gate open."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.NoiseLevel, err = m.Float64Gauge("vocalbooth.noise_level",
		metric.WithDescription("Tracked noise floor RMS."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DetectorErrors, err = m.Int64Counter("vocalbooth.detector.errors",
		metric.WithDescription("Total failed pitch detector calls."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTrips, err = m.Int64Counter("vocalbooth.breaker.trips",
		metric.WithDescription("Total circuit breaker openings by breaker name."),
	); err != nil {
		return nil, err
	}

	// Control.
	if met.ParamUpdates, err = m.Int64Counter("vocalbooth.param.updates",
		metric.WithDescription("Parameter entries received by source and status."),
	); err != nil {
		return nil, err
	}
	if met.LiveClients, err = m.Int64UpDownCounter("vocalbooth.live.clients",
		metric.WithDescription("Number of connected control clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalbooth.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// FrameStats is a batch of audio pipeline counters accumulated between two
// polls.
type FrameStats struct {
	Frames         int64
	DeadlineMisses int64
	Corrections    int64
	ClampedSamples int64
	VoiceActive    int64
	DetectorErrors int64
}

// RecordFrames adds a batch of pipeline counters.
func (m *Metrics) RecordFrames(ctx context.Context, s FrameStats) {
	addIfPositive(ctx, m.Frames, s.Frames)
	addIfPositive(ctx, m.DeadlineMisses, s.DeadlineMisses)
	addIfPositive(ctx, m.Corrections, s.Corrections)
	addIfPositive(ctx, m.ClampedSamples, s.ClampedSamples)
	addIfPositive(ctx, m.VoiceActiveFrames, s.VoiceActive)
	addIfPositive(ctx, m.DetectorErrors, s.DetectorErrors)
}

// RecordFrameDuration records one frame's processing time in seconds.
func (m *Metrics) RecordFrameDuration(ctx context.Context, seconds float64) {
	m.FrameDuration.Record(ctx, seconds)
}

// RecordNoiseLevel sets the noise floor gauge.
func (m *Metrics) RecordNoiseLevel(ctx context.Context, level float64) {
	m.NoiseLevel.Record(ctx, level)
}

// RecordBreakerTrips adds n openings of the named breaker.
func (m *Metrics) RecordBreakerTrips(ctx context.Context, breaker string, n int64) {
	if n <= 0 {
		return
	}
	m.BreakerTrips.Add(ctx, n, metric.WithAttributes(attribute.String("breaker", breaker)))
}

// RecordParamUpdate counts applied and rejected parameter entries from source.
// It satisfies the params package's Recorder interface.
func (m *Metrics) RecordParamUpdate(ctx context.Context, source string, applied, rejected int) {
	if applied > 0 {
		m.ParamUpdates.Add(ctx, int64(applied), metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", "applied"),
		))
	}
	if rejected > 0 {
		m.ParamUpdates.Add(ctx, int64(rejected), metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", "rejected"),
		))
	}
}

func addIfPositive(ctx context.Context, c metric.Int64Counter, n int64) {
	if n > 0 {
		c.Add(ctx, n)
	}
}
