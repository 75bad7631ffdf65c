// Package observe provides application-wide observability primitives for the
// soundboard: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them into a Prometheus registry served by [Telemetry.Handler].
// [DefaultMetrics] binds the instruments to the global meter provider; tests
// use [NewMetrics] with their own provider so they do not share state.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all soundboard metrics.
const meterName = "github.com/MrWong99/soundboard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per speech stage ---

	// TTSDuration tracks remote synthesis latency.
	TTSDuration metric.Float64Histogram

	// TranscodeDuration tracks ffmpeg transcode latency.
	TranscodeDuration metric.Float64Histogram

	// SpeechDuration tracks a whole Speak call up to playback start.
	SpeechDuration metric.Float64Histogram

	// PlaybackDuration tracks how long clips actually played. Use with
	// attribute.String("category", ...).
	PlaybackDuration metric.Float64Histogram

	// CommandDuration tracks slash-command handling time. Use with
	// attribute.String("command", ...).
	CommandDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Plays counts started playbacks. Use with attributes:
	//   attribute.String("category", ...), attribute.String("status", ...)
	Plays metric.Int64Counter

	// Resolves counts name lookups by outcome. Use with attributes:
	//   attribute.String("category", ...), attribute.String("tier", ...)
	Resolves metric.Int64Counter

	// SpeechRequests counts Speak calls. Use with attributes:
	//   attribute.String("status", ...), attribute.String("stage", ...)
	SpeechRequests metric.Int64Counter

	// SlotsSwept counts stale speech files removed by the janitor.
	SlotsSwept metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// VoiceConnections tracks whether the bot holds a voice connection.
	VoiceConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks requests to the metrics and health listener
	// by method, mux route, and status code.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// synthesis and transcode latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// playbackBuckets covers clip lengths from a blip to a full song.
var playbackBuckets = []float64{
	0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.TTSDuration, "soundboard.tts.duration", "Latency of remote speech synthesis.", latencyBuckets},
		{&met.TranscodeDuration, "soundboard.transcode.duration", "Latency of audio transcoding.", latencyBuckets},
		{&met.SpeechDuration, "soundboard.speech.duration", "Latency from say request to playback start.", latencyBuckets},
		{&met.PlaybackDuration, "soundboard.playback.duration", "Duration of finished playbacks.", playbackBuckets},
		{&met.CommandDuration, "soundboard.command.duration", "Slash-command handling latency.", latencyBuckets},
		{&met.HTTPRequestDuration, "soundboard.http.request.duration", "HTTP request latency by method, route, and status.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
		}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		if *h.dst, err = m.Float64Histogram(h.name, opts...); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "soundboard.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.Plays, "soundboard.plays", "Total started playbacks by category and status."},
		{&met.Resolves, "soundboard.resolves", "Total name lookups by category and match tier."},
		{&met.SpeechRequests, "soundboard.speech.requests", "Total say requests by status and failing stage."},
		{&met.SlotsSwept, "soundboard.speech.slots_swept", "Stale speech files removed by the janitor."},
		{&met.ProviderErrors, "soundboard.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.VoiceConnections, err = m.Int64UpDownCounter("soundboard.voice.connections",
		metric.WithDescription("Number of held voice connections."),
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

// Status maps an error to the "status" attribute value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
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

// RecordPlay records a started (or refused) playback.
func (m *Metrics) RecordPlay(ctx context.Context, category, status string) {
	m.Plays.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("status", status),
		),
	)
}

// RecordPlaybackDuration records the length of a finished playback.
func (m *Metrics) RecordPlaybackDuration(ctx context.Context, category string, d time.Duration) {
	m.PlaybackDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordResolve records the outcome tier of a name lookup.
func (m *Metrics) RecordResolve(ctx context.Context, category, tier string) {
	m.Resolves.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("tier", tier),
		),
	)
}

// RecordSpeech records a finished Speak call. stage is empty on success.
func (m *Metrics) RecordSpeech(ctx context.Context, stage string, err error) {
	if stage == "" {
		stage = "none"
	}
	m.SpeechRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", Status(err)),
			attribute.String("stage", stage),
		),
	)
}

// RecordCommand records how long a slash command took.
func (m *Metrics) RecordCommand(ctx context.Context, command string, d time.Duration) {
	m.CommandDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("command", command)),
	)
}
