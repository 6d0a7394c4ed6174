package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey   contextKey = "pos.requestctx.logger"
	traceKey    contextKey = "pos.requestctx.trace"
	terminalKey contextKey = "pos.requestctx.terminal"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// IsNoop reports whether logger is the shared fallback.
func IsNoop(logger *zap.Logger) bool { return logger == nil || logger == noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithTerminal records the terminal a request acts for.
func WithTerminal(ctx context.Context, terminalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, terminalKey, terminalID)
}

// Terminal returns the terminal recorded by WithTerminal, or "".
func Terminal(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(terminalKey).(string)
	return id
}
