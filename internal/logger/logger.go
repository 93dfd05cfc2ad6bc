// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and propagates a
// per-load id through context.Context so every line of one chart load can be
// correlated.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const loadIDKey ctxKey = "load_id"

// Init creates a JSON logger on stdout for the given service and installs it
// as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	logger := New(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// New creates a JSON logger writing to w without touching the default.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithLoadID stores a load id in the context for downstream propagation.
func WithLoadID(ctx context.Context, loadID string) context.Context {
	return context.WithValue(ctx, loadIDKey, loadID)
}

// LoadID extracts the load id from context. Returns "" if not set.
func LoadID(ctx context.Context) string {
	if v, ok := ctx.Value(loadIDKey).(string); ok {
		return v
	}
	return ""
}

// NewLoadID creates a load id from a symbol and timestamp: "{symbol}-{unixNano}".
func NewLoadID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// LogWithLoad returns slog attributes carrying the load id from context.
// Usage: slog.Info("msg", logger.LogWithLoad(ctx)...)
func LogWithLoad(ctx context.Context) []any {
	id := LoadID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("load_id", id)}
}
