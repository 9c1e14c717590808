// Package logging provides structured logging using Go's slog package.
//
// Logs are written to standard error so that standard output stays free for
// merged corpus data.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RunIDKey is the context key for merge run IDs.
	RunIDKey ContextKey = "run_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLoggerTo(os.Stderr, LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel converts a level name ("debug", "info", "warn", "error").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat converts a format name ("json", "text").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format %q", s)
}

// InitLoggerTo initializes the global logger writing to w.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// Merge event helpers. Each logs one event name with a fixed set of keys.

// MergeStarted logs the start of a merge job.
func MergeStarted(logger *slog.Logger, job string, streams int, output string, args ...any) {
	allArgs := []any{
		"job", job,
		"streams", streams,
		"output", output,
	}
	allArgs = append(allArgs, args...)
	logger.Info("merge_started", allArgs...)
}

// MergeProgress logs periodic progress of a running merge.
func MergeProgress(logger *slog.Logger, units, tokens int64, elapsed time.Duration) {
	logger.Info("merge_progress",
		"units", humanize.Comma(units),
		"tokens", humanize.Comma(tokens),
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)
}

// MergeFinished logs a successful merge.
func MergeFinished(logger *slog.Logger, job string, units, tokens int64, outputBytes int64, duration time.Duration, args ...any) {
	allArgs := []any{
		"job", job,
		"units", units,
		"tokens", tokens,
		"output_size", humanize.Bytes(uint64(outputBytes)),
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	logger.Info("merge_finished", allArgs...)
}

// MergeFailed logs a merge that stopped on an error.
func MergeFailed(logger *slog.Logger, job string, err error, args ...any) {
	allArgs := []any{
		"job", job,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	logger.Error("merge_failed", allArgs...)
}

// CheckPassed logs a file that passed validation.
func CheckPassed(logger *slog.Logger, input string, lines int, tokens int64) {
	logger.Info("check_passed",
		"input", input,
		"lines", lines,
		"tokens", tokens,
	)
}

// CheckFailed logs a file that failed validation.
func CheckFailed(logger *slog.Logger, input string, err error) {
	logger.Warn("check_failed",
		"input", input,
		"error", err.Error(),
	)
}
