package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// successKey marks records emitted through Logger.Success so the console
// handler can render the [SUCCESS] prefix instead of [INFO].
const successKey = "thypress.success"

const (
	colorReset   = "\033[0m"
	colorCyan    = "\033[36m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
)

// ConsoleHandler renders slog records as severity-prefixed console lines.
type ConsoleHandler struct {
	mu     sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
	color  bool
}

// NewConsoleHandler creates a console handler writing to out.
func NewConsoleHandler(out io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		out:   out,
		level: level,
		color: ColorEnabled(out),
	}
}

// ColorEnabled reports whether ANSI color should be emitted to out.
// NO_COLOR disables color unconditionally, FORCE_COLOR enables it, and
// otherwise color is used only when out is a terminal.
func ColorEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, record slog.Record) error {
	success := false
	var parts []string
	appendAttr := func(a slog.Attr) {
		if a.Key == successKey {
			success = true
			return
		}
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})

	prefix, tint := prefixFor(record.Level, success)
	if h.color {
		prefix = tint + prefix + colorReset
	}

	line := prefix + " " + record.Message
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, " ") + ")"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func prefixFor(level slog.Level, success bool) (string, string) {
	switch {
	case success:
		return "[SUCCESS]", colorGreen
	case level < slog.LevelInfo:
		return "[DEBUG]", colorCyan
	case level < slog.LevelWarn:
		return "[INFO]", colorCyan
	case level < slog.LevelError:
		return "[WARNING]", colorYellow
	default:
		return "[ERROR]", colorRed
	}
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}
