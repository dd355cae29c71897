// Package logging provides structured logging for the runtime using
// slog, with optional rotated file output via lumberjack.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// InvocationIDKey is the context key for the per-trigger-event
// correlation ID threaded through a component's Prepare/Build/run.
const InvocationIDKey ContextKey = "invocation_id"

// Config holds logger configuration for the host process itself (not
// to be confused with per-component stdio, which is configured
// separately by the executor).
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// New creates a structured logger from cfg.
func New(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler)
}

// ParseLevel parses a string log level into a slog.Level, defaulting
// to info on anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupWriter resolves the configured output sink.
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		return os.Stdout
	}
}

// GenerateInvocationID returns a random ID used to correlate log lines
// across a single trigger dispatch → instance lifecycle.
func GenerateInvocationID() string {
	return "inv_" + uuid.NewString()
}

// WithInvocationID attaches an invocation ID to ctx.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, id)
}

// InvocationID extracts the invocation ID from ctx, if any.
func InvocationID(ctx context.Context) string {
	if id, ok := ctx.Value(InvocationIDKey).(string); ok {
		return id
	}
	return ""
}

// ForComponent returns a child logger tagged with the component ID, the
// way every factor's log lines should identify which guest they concern.
func ForComponent(logger *slog.Logger, componentID string) *slog.Logger {
	return logger.With("component_id", componentID)
}
