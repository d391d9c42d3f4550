package log

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/gin-gonic/gin"
)

// Logger returns the current default logger instance.
func Logger() *slog.Logger {
	return slog.Default()
}

// New builds the process logger: JSON output for production, text otherwise.
func New(w io.Writer, level string, jsonOutput bool) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithContext returns a logger that includes trace_id and any additional log fields from context.
func WithContext(ctx interface{}) *slog.Logger {
	logger := Logger()
	var traceID string
	var logFields LogFields

	switch v := ctx.(type) {
	case *gin.Context:
		traceID = v.GetString("trace_id")
		if v.Request != nil {
			logFields = GetLogFields(v.Request.Context())
		}
	case context.Context:
		traceID = TraceID(v)
		logFields = GetLogFields(v)
	}

	if traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	// Sorted so that attribute order is stable across log lines.
	keys := make([]string, 0, len(logFields))
	for k := range logFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger = logger.With(k, logFields[k])
	}

	return logger
}

// Info logs at Info level with automatic trace_id and field extraction from context.
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...) //nolint:contextcheck // WithContext extracts metadata from context
}

// Error logs at Error level with automatic trace_id and field extraction from context.
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...) //nolint:contextcheck // WithContext extracts metadata from context
}

// Warn logs at Warn level with automatic trace_id and field extraction from context.
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...) //nolint:contextcheck // WithContext extracts metadata from context
}

// Debug logs at Debug level with automatic trace_id and field extraction from context.
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...) //nolint:contextcheck // WithContext extracts metadata from context
}
