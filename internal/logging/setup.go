package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// FileName is the name of the active log file.
const FileName = "chatops-bot.log"

// Config configures the process-wide log sink.
type Config struct {
	Debug         bool
	Dir           string // empty disables file logging
	RetentionDays int
	Console       io.Writer
}

// Setup builds the logger used by every component: a console handler plus,
// when Dir is set, a daily rotating file. The returned close function
// flushes and closes the file.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{
		NewHandler(console, &Options{Level: level, Color: isTerminal(console)}),
	}

	closeFn := func() error { return nil }
	if cfg.Dir != "" {
		f, err := OpenDailyFile(cfg.Dir, FileName, cfg.RetentionDays, nil)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, NewHandler(f, &Options{Level: level}))
		closeFn = f.Close
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(fanout(handlers)), closeFn, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// fanout sends every record to all handlers that accept it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
