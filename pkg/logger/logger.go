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

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for the request ID.
	RequestIDKey contextKey = "request_id"
	// RoleKey is the context key for the authenticated API role.
	RoleKey contextKey = "api_role"
)

// Options selects handler format and level.
type Options struct {
	Env    string // "production" switches to JSON at INFO
	Format string // "json" or "text"; empty picks by Env
	Level  string // debug, info, warn, error; empty picks by Env
}

// Logger is a structured logger wrapper around slog
type Logger struct {
	*slog.Logger
}

// New creates a new structured logger
func New(opts Options, output io.Writer) *Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       levelFor(opts),
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	if opts.Env == "production" || opts.Format == "json" {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewDefault creates a logger for env writing to stdout, honouring
// LOG_FORMAT and LOG_LEVEL.
func NewDefault(env string) *Logger {
	return New(Options{
		Env:    env,
		Format: os.Getenv("LOG_FORMAT"),
		Level:  os.Getenv("LOG_LEVEL"),
	}, os.Stdout)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func levelFor(opts Options) slog.Level {
	switch strings.ToLower(opts.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if opts.Env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	}
	// keep only filename:line
	if a.Key == slog.SourceKey {
		if src, ok := a.Value.Any().(*slog.Source); ok {
			file := src.File
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			a.Value = slog.StringValue(fmt.Sprintf("%s:%d", file, src.Line))
		}
	}
	return a
}

// ContextWithRequestID stores id for later WithContext calls.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// ContextWithRole stores the authenticated API role.
func ContextWithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// WithContext adds context fields to the logger
func (l *Logger) WithContext(ctx context.Context) *Logger {
	result := l
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		result = &Logger{Logger: result.With("request_id", requestID)}
	}
	if role := ctx.Value(RoleKey); role != nil {
		result = &Logger{Logger: result.With("api_role", role)}
	}
	return result
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		Logger: l.With(args...),
	}
}

// WithField creates a new logger with an additional field
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{
		Logger: l.With(key, value),
	}
}

// WithAccount tags every record with the account being operated on.
func (l *Logger) WithAccount(accountID string) *Logger {
	return l.WithField("account_id", accountID)
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

// WithDuration creates a new logger with a duration_ms field
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger: l.With("duration_ms", d.Milliseconds()),
	}
}
