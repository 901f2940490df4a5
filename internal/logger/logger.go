package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the process-wide log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the process-wide logger writes. The console side
// is always colorized text on stderr; Dir additionally enables a rotated
// JSON file under Dir/mcsupervisor.log.
type Config struct {
	Dir        string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds the process-wide *slog.Logger: a colorized text handler on
// stderr fanned out to a rotated JSON file handler when Dir is set.
func New(c Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	handlers := []slog.Handler{NewColorTextHandler(os.Stderr, opts, true)}

	if c.Dir != "" {
		fileW := &lj.Logger{
			Filename:   filepath.Join(c.Dir, "mcsupervisor.log"),
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(fileW, opts))
	}

	return slog.New(newFanoutHandler(handlers))
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fanoutHandler dispatches every record to each of its handlers in order,
// continuing past individual handler errors so one broken sink (e.g. a
// rotated file hitting a permission error) never silences the console.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}
