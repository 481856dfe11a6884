package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the available log levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a user supplied level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return level, nil
	case "warning":
		return LogLevelWarn, nil
	default:
		return "", fmt.Errorf("unknown log level %q (must be debug, info, warn or error)", s)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides a structured logger instance configured for the application
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger writing to stderr
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter creates a structured logger writing text records to w
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "time",
					Value: slog.StringValue(a.Value.Time().Format("15:04:05")),
				}
			}
			return a
		},
	}

	return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts))}
}

// NewDiscardLogger returns a logger that drops every record. Used by tests.
func NewDiscardLogger() *Logger {
	return NewLoggerWithWriter(io.Discard, LogLevelError)
}

// WithComponent creates a logger with a component context for better tracing
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithRequest tags every record with the inbound request id
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With("request_id", requestID)}
}

// WithModel tags every record with the model being exercised
func (l *Logger) WithModel(model string) *Logger {
	return &Logger{Logger: l.Logger.With("model", model)}
}

// InfoWithIcon logs info message with emoji for user-friendly output
func (l *Logger) InfoWithIcon(icon string, msg string, args ...any) {
	l.Info(icon+" "+msg, args...)
}

// WarnWithIcon logs warning message with emoji for user-friendly output
func (l *Logger) WarnWithIcon(icon string, msg string, args ...any) {
	l.Warn(icon+" "+msg, args...)
}

// ErrorWithIcon logs error message with emoji for user-friendly output
func (l *Logger) ErrorWithIcon(icon string, msg string, args ...any) {
	l.Error(icon+" "+msg, args...)
}

// DebugWithIcon logs debug message with emoji for development
func (l *Logger) DebugWithIcon(icon string, msg string, args ...any) {
	l.Debug(icon+" "+msg, args...)
}

// Default logger instance - single instance for the entire application
var Default = NewLogger(LogLevelInfo)

// SetGlobalLogLevel updates the global default logger with a new log level.
// Component loggers created before this call keep the old level.
func SetGlobalLogLevel(level LogLevel) {
	Default = NewLogger(level)
}

// NewComponentLogger creates a new logger for a specific component
func NewComponentLogger(component string) *Logger {
	return Default.WithComponent(component)
}
