package logging

import (
	"log/slog"
	"os"
)

// Logger is the application-wide structured logger instance. It starts as
// slog's default so the With* helpers are usable before InitLogger runs
// (tests, early startup).
var Logger = slog.Default()

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// WithSession returns a logger with session_id field.
func WithSession(sessionID string) *slog.Logger {
	return Logger.With("session_id", sessionID)
}

// WithWidget returns a logger with widget_id field.
func WithWidget(widgetID string) *slog.Logger {
	return Logger.With("widget_id", widgetID)
}

// WithSubject returns a logger with subject_id field.
func WithSubject(subjectID string) *slog.Logger {
	return Logger.With("subject_id", subjectID)
}
