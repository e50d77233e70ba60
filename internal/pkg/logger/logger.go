package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Initialize creates and configures the default logger. An empty level keeps
// the environment default (info in production, debug otherwise).
func Initialize(env string, level string) *slog.Logger {
	return initializeTo(os.Stdout, env, level)
}

func initializeTo(w io.Writer, env string, level string) *slog.Logger {
	var handler slog.Handler

	if env == "production" {
		// JSON logging for production
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     ParseLevel(level, slog.LevelInfo),
			AddSource: false,
		})
	} else {
		// Pretty text logging for development
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     ParseLevel(level, slog.LevelDebug),
			AddSource: true,
		})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return defaultLogger
}

// ParseLevel maps LOG_LEVEL style names to slog levels
func ParseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return fallback
	}
}

// Get returns the default logger instance
func Get() *slog.Logger {
	if defaultLogger == nil {
		return Initialize("development", "")
	}
	return defaultLogger
}

// NewServiceLogger creates a logger for a specific service
func NewServiceLogger(serviceName string) *slog.Logger {
	return Get().With(slog.String("service", serviceName))
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
