package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelTracer adapts an OTEL trace.Tracer to the Tracer interface.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps t.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: t}
}

// StartSpan implements Tracer.
func (o *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// OtelMetrics adapts OTEL counter/histogram instruments to the Metrics interface.
type OtelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics constructs an OtelMetrics backed by m. Instruments are
// created lazily per metric name on first use.
func NewOtelMetrics(m metric.Meter) *OtelMetrics {
	return &OtelMetrics{
		meter:      m,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncCounter implements Metrics.
func (o *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, ok := o.counters[name]
	if !ok {
		var err error
		c, err = o.meter.Float64Counter(name)
		if err != nil {
			return
		}
		o.counters[name] = c
	}
	c.Add(context.Background(), value)
	_ = tags
}

// RecordTimer implements Metrics.
func (o *OtelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, ok := o.histograms[name]
	if !ok {
		var err error
		h, err = o.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		o.histograms[name] = h
	}
	h.Record(context.Background(), float64(d.Milliseconds()))
	_ = tags
}
