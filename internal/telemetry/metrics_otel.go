package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics adapts an OpenTelemetry meter to the Metrics interface.
type otelMetrics struct{ meter metric.Meter }

// NewOTelMetrics returns a Metrics recorder backed by the given meter,
// typically obtained from otel.Meter("github.com/ideagent/backend") after
// configuring a global MeterProvider.
func NewOTelMetrics(meter metric.Meter) Metrics { return otelMetrics{meter: meter} }

func (m otelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m otelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m otelMetrics) RecordGauge(name string, value float64, tags ...string) {
	gauge, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	gauge.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// tagAttrs treats each tag as a bare label, recorded as attr.N=value so
// simple string tags (as used elsewhere in this codebase) survive the trip
// through OpenTelemetry attributes without requiring key=value formatting
// at every call site.
func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(tags))
	for i, t := range tags {
		attrs[i] = attribute.String("attr."+strconv.Itoa(i), t)
	}
	return attrs
}
