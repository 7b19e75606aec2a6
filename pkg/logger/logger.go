package logger

import (
	"context"
	"log/slog"
	"os"
)

type Logger struct {
	*slog.Logger
}

var isDebug = os.Getenv("DEBUG")

// NewLogger creates a new Logger instance.
func NewLogger() *Logger {
	level := slog.LevelInfo
	addSource := false
	if isDebug == "1" {
		level = slog.LevelDebug
		addSource = true
	}
	handler := NewHandler(&slog.HandlerOptions{Level: level, AddSource: addSource})
	return &Logger{Logger: slog.New(handler)}
}

// WithBuild returns a child logger carrying the image/version/build_id
// fields the Runner attaches to every log line of a single build,
// mirroring smidr's per-build prefixing but as structured slog
// attributes instead of a text prefix.
func (l *Logger) WithBuild(image, version, buildID string) *Logger {
	if l == nil {
		return nil
	}
	return l.With(
		slog.String("image", image),
		slog.String("version", version),
		slog.String("build_id", buildID),
	)
}

// toArgs flattens slog.Attr values into the ...any form the stdlib logger
// methods accept.
func toArgs(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// attachError appends an "error" attribute when err is non-nil.
func attachError(err error, attrs []slog.Attr) []slog.Attr {
	if err == nil {
		return attrs
	}
	return append(attrs, slog.String("error", err.Error()))
}

func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Info(msg, toArgs(attrs)...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.InfoContext(ctx, msg, toArgs(attrs)...)
}

func (l *Logger) Warn(msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Warn(msg, toArgs(attrs)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.WarnContext(ctx, msg, toArgs(attrs)...)
}

func (l *Logger) Error(msg string, err error, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Error(msg, toArgs(attachError(err, attrs))...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.ErrorContext(ctx, msg, toArgs(attachError(err, attrs))...)
}

// Fatal logs at ERROR level, if possible, and always exits the process.
func (l *Logger) Fatal(msg string, err error, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		os.Exit(1)
	}
	l.Logger.Error(msg, toArgs(attachError(err, attrs))...)
	os.Exit(1)
}

func (l *Logger) FatalContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		os.Exit(1)
	}
	l.Logger.ErrorContext(ctx, msg, toArgs(attachError(err, attrs))...)
	os.Exit(1)
}

func (l *Logger) Debug(msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Debug(msg, toArgs(attrs)...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.DebugContext(ctx, msg, toArgs(attrs)...)
}

// With returns a new Logger carrying attrs on every subsequent message.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	if l == nil || l.Logger == nil {
		return nil
	}
	return &Logger{Logger: l.Logger.With(toArgs(attrs)...)}
}
