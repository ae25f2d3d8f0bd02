package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "moodcore"

// redacted replaces the value of sensitive attributes.
const redacted = "********"

// sensitiveKeys are attribute keys whose values never reach the output.
// Matching is case-insensitive on the last path element, so a grouped
// "auth.password" is caught too.
var sensitiveKeys = map[string]struct{}{
	"password": {},
	"token":    {},
	"secret":   {},
}

// Logger is the slog.Logger used throughout Mood Core.
//
// The embedded *slog.Logger gives it Debug/Info/Warn/Error with key/value
// arguments, so it satisfies the small Logger interfaces the mqtt and lamp
// packages accept.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to the stream named by cfg.Output
// ("stdout" or "stderr", default stdout).
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// The CLI uses it to keep stdout free for command output.
//
// Every entry carries service and version. Attributes named password,
// token or secret are masked.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With(
			slog.String("service", ServiceName),
			slog.String("version", version),
		),
	}
}

// Discard returns a Logger that drops everything. Tests use it.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))}
}

// With returns a Logger carrying extra attributes, typically a component:
//
//	mqttLog := log.With("component", "mqtt")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok && a.Value.String() != "" {
		return slog.String(a.Key, redacted)
	}
	return a
}
