// Package telemetry defines logging/tracing/metrics interfaces with no-op,
// zap and OTEL implementations, kept separate from any concrete backend.
// No other package in this module calls them.
package telemetry

import (
	"context"
	"time"
)

// Logger is the structured logging contract.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Metrics is the counter/timer contract.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
}

// Span is one tracing span.
type Span interface {
	End()
	SetError(err error)
}

// Tracer starts spans for named operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}
