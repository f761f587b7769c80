package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

// Options selects where and how verbosely logs are written.
type Options struct {
	Level string
	// File, when set, receives JSON logs rotated by size. Otherwise text
	// logs go to Stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Stderr     io.Writer
}

// New builds a SlogLogger from opts. The returned closer flushes and closes
// the log file, if any.
func New(opts Options) (*SlogLogger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	ho := &slog.HandlerOptions{Level: level}

	if opts.File == "" {
		w := opts.Stderr
		if w == nil {
			w = io.Discard
		}
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, ho))), nopCloser{}, nil
	}

	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups == 0 {
		maxBackups = 3
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return NewSlogLogger(slog.New(slog.NewJSONHandler(lj, ho))), lj, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
