// Package metrics records capture-session telemetry through the
// OpenTelemetry Metrics API. [InitProvider] bridges it to a Prometheus
// exporter; tests use [New] with their own [metric.MeterProvider].
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vadcap"

// Segment outcomes.
const (
	OutcomeClosed  = "closed"
	OutcomeAborted = "aborted"
)

// Metrics holds the instruments for one process.
type Metrics struct {
	// Windows counts classified windows. Attribute verdict=quiet|active.
	Windows metric.Int64Counter

	// Segments counts finished segments. Attribute outcome=closed|aborted.
	Segments metric.Int64Counter

	// SegmentDuration is the audio length of closed segments.
	SegmentDuration metric.Float64Histogram

	// ArchiveBytes counts PCM bytes appended to the archive.
	ArchiveBytes metric.Int64Counter

	// Overruns counts device chunks dropped because the loop fell behind.
	Overruns metric.Int64Counter

	// Recording is 1 while a segment is open.
	Recording metric.Int64UpDownCounter
}

var durationBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 10, 20, 30, 60,
}

func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Windows, err = m.Int64Counter("vadcap.windows",
		metric.WithDescription("Classified sample windows by verdict."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("vadcap.segments",
		metric.WithDescription("Finished utterance segments by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("vadcap.segment.duration",
		metric.WithDescription("Audio length of closed utterance segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ArchiveBytes, err = m.Int64Counter("vadcap.archive.bytes",
		metric.WithDescription("PCM bytes appended to the session archive."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Overruns, err = m.Int64Counter("vadcap.device.overruns",
		metric.WithDescription("Device chunks dropped because the capture loop fell behind."),
	); err != nil {
		return nil, err
	}
	if met.Recording, err = m.Int64UpDownCounter("vadcap.recording",
		metric.WithDescription("1 while an utterance segment is open."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide instance backed by the global provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordWindow(ctx context.Context, quiet bool) {
	verdict := "active"
	if quiet {
		verdict = "quiet"
	}
	m.Windows.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

func (m *Metrics) RecordSegment(ctx context.Context, outcome string, seconds float64) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == OutcomeClosed {
		m.SegmentDuration.Record(ctx, seconds)
	}
}
