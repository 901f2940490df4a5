package logger

import (
	"context"
	"io"
	"log/slog"
)

// nickColor is the ANSI code used to highlight the "nick" attribute that
// every target-scoped log record in this codebase carries (metrics,
// lifecycle events, and tick logging all key off it). Multiple targets'
// records interleave on a single console, so the nick is called out
// separately from level coloring to make it scannable at a glance.
const nickColor = "\033[35m" // Magenta

// ColorTextHandler wraps slog.TextHandler to add ANSI color codes for
// different log levels, plus a highlighted target nick when the record
// carries one. The nick may arrive either as a per-call attribute or via
// Logger.With, so WithAttrs is overridden to capture it (and to keep the
// wrapper itself from being unwrapped by the embedded handler's method).
type ColorTextHandler struct {
	*slog.TextHandler
	showTime bool
	nick     string
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, opts),
		showTime:    showTime,
	}
}

// WithAttrs implements slog.Handler
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &ColorTextHandler{
		TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler),
		showTime:    h.showTime,
		nick:        h.nick,
	}
	for _, a := range attrs {
		if a.Key == "nick" {
			nh.nick = a.Value.String()
		}
	}
	return nh
}

// WithGroup implements slog.Handler
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{
		TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler),
		showTime:    h.showTime,
		nick:        h.nick,
	}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	// Add color based on level
	var colorCode string
	switch r.Level {
	case slog.LevelDebug:
		colorCode = "\033[36m" // Cyan
	case slog.LevelInfo:
		colorCode = "\033[32m" // Green
	case slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case slog.LevelError:
		colorCode = "\033[31m" // Red
	default:
		colorCode = "\033[0m" // Reset/default
	}

	nick := h.nick
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "nick" {
			nick = a.Value.String()
			return false
		}
		return true
	})

	// Modify the message to include color
	originalMsg := r.Message
	prefix := colorCode + r.Level.String() + "\033[0m  "
	if nick != "" {
		prefix += nickColor + "[" + nick + "]" + "\033[0m "
	}
	r.Message = prefix + originalMsg

	return h.TextHandler.Handle(ctx, r)
}
