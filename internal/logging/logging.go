// Package logging builds the slog logger used by the maxclient command.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger wraps a slog.Logger whose level can be changed at runtime.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// Options selects the handler. Format is "text" or "json"; File, when set,
// receives output instead of w.
type Options struct {
	Level     slog.Level
	Format    string
	File      string
	AddSource bool
}

// New creates a logger writing to w, or to opts.File when it is set.
func New(w io.Writer, opts Options) (*Logger, error) {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(opts.Level)

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		w = f
	}

	ho := &slog.HandlerOptions{
		AddSource:   opts.AddSource,
		Level:       l.level,
		ReplaceAttr: shortSource,
	}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, ho)
	case "json":
		h = slog.NewJSONHandler(w, ho)
	default:
		l.Close()
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	l.Logger = slog.New(h)
	return l, nil
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(level slog.Level) {
	if l.level.Level() == level {
		return
	}
	l.level.Set(level)
	l.Info("Log level changed", "level", level.String())
}

// Level returns the current level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// shortSource prints the source as file.go:line (function).
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok || src == nil {
		return a
	}
	fn := src.Function
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	a.Value = slog.StringValue(fmt.Sprintf("%s:%d (%s)", filepath.Base(src.File), src.Line, fn))
	return a
}
