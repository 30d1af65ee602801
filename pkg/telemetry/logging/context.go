package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// LimiterKey is the context key for limiter names.
	LimiterKey contextKey = "limiter"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLimiter adds a limiter name to the context.
func WithLimiter(ctx context.Context, limiter string) context.Context {
	return context.WithValue(ctx, LimiterKey, limiter)
}

// GetLimiter retrieves the limiter name from the context.
func GetLimiter(ctx context.Context) string {
	if limiter, ok := ctx.Value(LimiterKey).(string); ok {
		return limiter
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Trace and span IDs come from the active OpenTelemetry span, if any.
func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if limiter := GetLimiter(ctx); limiter != "" {
		fields = append(fields, "limiter", limiter)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.log(cl.ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.log(cl.ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.log(cl.ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.log(cl.ctx, slog.LevelError, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
