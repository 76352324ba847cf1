package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for clinicmesh.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// ServiceLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type ServiceLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	sessionID string
}

// LoggerConfig configures construction of a ServiceLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	SessionID   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, CustomAttrs: map[string]any{}}
}

// NewLogger builds a ServiceLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ServiceLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &ServiceLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, sessionID: cfg.SessionID}
}

// NewSlogLogger creates a ServiceLogger with the specified level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ServiceLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *ServiceLogger) clone() *ServiceLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute attached to every log entry.
func (l *ServiceLogger) WithContext(key string, value any) *ServiceLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (session store, guardrail, tool, etc.).
func (l *ServiceLogger) WithComponent(c string) *ServiceLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches the session identifier.
func (l *ServiceLogger) WithSession(sid string) *ServiceLogger {
	nl := l.clone()
	nl.sessionID = sid
	return nl
}

func (l *ServiceLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *ServiceLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *ServiceLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *ServiceLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *ServiceLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *ServiceLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogGuardedCall records the outcome of a guarded tool invocation.
func (l *ServiceLogger) LogGuardedCall(tool, outcome string, dur time.Duration, violations int) {
	attrs := l.buildAttrs()
	attrs = append(attrs,
		slog.String("tool_name", tool),
		slog.String("outcome", outcome),
		slog.Duration("duration", dur),
		slog.Int("violation_count", violations),
	)
	level := slog.LevelInfo
	msg := "Guarded call completed"
	if outcome == "rejected" || outcome == "blocked" {
		level = slog.LevelWarn
		msg = "Guarded call declined"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogRepositoryCall records repository access latency and success.
func (l *ServiceLogger) LogRepositoryCall(op string, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("operation", op), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelDebug
	msg := "Repository call completed"
	if err != nil {
		level = slog.LevelError
		msg = "Repository call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogModelCall records model call latency, token usage and success.
func (l *ServiceLogger) LogModelCall(model string, tokens int, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("model", model), slog.Int("token_count", tokens), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Model call completed"
	if err != nil {
		level = slog.LevelError
		msg = "Model call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *ServiceLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("Operation completed", "operation", op, "duration", time.Since(start)) }
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
