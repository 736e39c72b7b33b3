// Package observe provides observability primitives for the voice note
// recorder: OpenTelemetry metrics, tracing helpers, and the provider
// bootstrap.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the optional /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all recorder metrics.
const meterName = "github.com/danielrosehill/voicenote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// EncodeDuration tracks how long the encode pipeline takes per save.
	// Use with attribute.String("container", ...).
	EncodeDuration metric.Float64Histogram

	// RecordingDuration tracks the captured length of completed sessions.
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// SessionsStarted counts recording sessions started.
	SessionsStarted metric.Int64Counter

	// CaptureInterruptions counts sessions terminated by device loss.
	CaptureInterruptions metric.Int64Counter

	// FramesDropped counts frames lost between driver callback and buffer.
	FramesDropped metric.Int64Counter

	// EncodeErrors counts failed saves. Use with attributes:
	//   attribute.String("container", ...), attribute.String("reason", ...)
	EncodeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions
	// (0 or 1 in the desktop app, but kept as a gauge for consistency).
	ActiveSessions metric.Int64UpDownCounter
}

// encodeBuckets defines histogram bucket boundaries (in seconds) sized for
// encode runs, which scale with recording length.
var encodeBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// recordingBuckets defines histogram bucket boundaries (in seconds) for
// captured session lengths, from quick memos to preset-ceiling recordings.
var recordingBuckets = []float64{
	5, 15, 30, 60, 180, 600, 1800, 3600, 7200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EncodeDuration, err = m.Float64Histogram("voicenote.encode.duration",
		metric.WithDescription("Duration of the encode pipeline per save."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(encodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("voicenote.recording.duration",
		metric.WithDescription("Captured audio length of completed sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SessionsStarted, err = m.Int64Counter("voicenote.sessions.started",
		metric.WithDescription("Total recording sessions started."),
	); err != nil {
		return nil, err
	}
	if met.CaptureInterruptions, err = m.Int64Counter("voicenote.capture.interruptions",
		metric.WithDescription("Total sessions terminated by device loss."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voicenote.capture.frames_dropped",
		metric.WithDescription("Frames dropped between driver callback and buffer."),
	); err != nil {
		return nil, err
	}
	if met.EncodeErrors, err = m.Int64Counter("voicenote.encode.errors",
		metric.WithDescription("Failed saves by container and reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicenote.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
