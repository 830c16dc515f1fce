package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger wraps l.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l.Sugar()}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z *ZapLogger) Info(_ context.Context, msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z *ZapLogger) Warn(_ context.Context, msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z *ZapLogger) Error(_ context.Context, msg string, kv ...any) { z.l.Errorw(msg, kv...) }
