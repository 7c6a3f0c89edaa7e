// Package telemetry provides the structured logging, metrics, and tracing
// facade used by every other package in this module. No other package calls
// fmt.Println or the standard log package directly; they take a Logger,
// Metrics, or Tracer through constructor injection instead.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured key-value log lines.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans for request-scoped tracing.
	Tracer interface {
		Start(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single unit of traced work.
	Span interface {
		End()
		AddEvent(name string, keyvals ...any)
		RecordError(err error)
	}
)

// noopLogger, noopMetrics, noopTracer discard everything. Used in tests and
// anywhere a caller does not wire a concrete implementation.
type (
	noopLogger  struct{}
	noopMetrics struct{}
	noopTracer  struct{}
	noopSpan    struct{}
)

// NewNoopLogger returns a Logger that discards all messages.
func NewNoopLogger() Logger { return noopLogger{} }

// NewNoopMetrics returns a Metrics recorder that discards all samples.
func NewNoopMetrics() Metrics { return noopMetrics{} }

// NewNoopTracer returns a Tracer that produces spans with no side effects.
func NewNoopTracer() Tracer { return noopTracer{} }

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func (noopMetrics) IncCounter(string, float64, ...string)     {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}
func (noopMetrics) RecordGauge(string, float64, ...string)    {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) { return ctx, noopSpan{} }

func (noopSpan) End()                      {}
func (noopSpan) AddEvent(string, ...any)   {}
func (noopSpan) RecordError(error)         {}

// otelTracer adapts an OpenTelemetry trace.Tracer to the Tracer interface.
type otelTracer struct{ t trace.Tracer }

// NewOTelTracer wraps an OpenTelemetry tracer obtained from a configured
// TracerProvider.
func NewOTelTracer(t trace.Tracer) Tracer { return otelTracer{t: t} }

func (o otelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.t.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

type otelSpan struct{ span trace.Span }

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) AddEvent(name string, keyvals ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(keyvals)...))
}

func (s otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}
