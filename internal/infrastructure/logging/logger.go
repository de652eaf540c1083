package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/config"
)

// levels is the verbosity ladder walked by Raise, quietest first.
var levels = []string{"error", "warn", "info", "debug"}

// Logger wraps slog.Logger.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to output.
//
// It configures:
//   - Output format (JSON or text)
//   - Log level filtering
//   - Default fields (service name, version)
//
// cfg.Output is resolved to a writer by the caller, which owns the process
// streams.
func New(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "mqtt2file"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to warn if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Raise returns the level that is steps notches more verbose than level,
// capped at debug. Unknown levels are treated as warn.
//
// Example:
//
//	Raise("warn", 1) // "info"
//	Raise("warn", 5) // "debug"
func Raise(level string, steps int) string {
	idx := 1
	for i, l := range levels {
		if strings.EqualFold(level, l) || (l == "warn" && strings.EqualFold(level, "warning")) {
			idx = i
			break
		}
	}
	idx += max(steps, 0)
	if idx >= len(levels) {
		idx = len(levels) - 1
	}
	return levels[idx]
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
