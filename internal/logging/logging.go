// Package logging builds the structured logger shared by every component.
//
// Service logs go through log/slog. Pretty output is rendered by the
// charmbracelet/log handler; JSON output uses slog's JSON handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	level  slog.Level
	json   bool
	writer io.Writer
	source bool
}

// WithLevel parses a textual level ("debug", "info", "warn", "error").
// Unknown values keep the default info level.
func WithLevel(level string) Option {
	return func(o *options) {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "debug":
			o.level = slog.LevelDebug
		case "warn", "warning":
			o.level = slog.LevelWarn
		case "error":
			o.level = slog.LevelError
		case "info":
			o.level = slog.LevelInfo
		}
	}
}

// WithDebug forces debug level when true.
func WithDebug(debug bool) Option {
	return func(o *options) {
		if debug {
			o.level = slog.LevelDebug
		}
	}
}

// WithJSON selects slog's JSON handler instead of the pretty handler.
func WithJSON(json bool) Option {
	return func(o *options) {
		o.json = json
	}
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithSource includes source file:line in log output.
func WithSource(source bool) Option {
	return func(o *options) {
		o.source = source
	}
}

// New returns a configured *slog.Logger.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.json {
		return slog.New(slog.NewJSONHandler(o.writer, &slog.HandlerOptions{
			Level:     o.level,
			AddSource: o.source,
		}))
	}

	handler := charmlog.NewWithOptions(o.writer, charmlog.Options{
		ReportTimestamp: true,
		ReportCaller:    o.source,
		Level:           charmLevel(o.level),
	})
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func charmLevel(level slog.Level) charmlog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmlog.DebugLevel
	case level <= slog.LevelInfo:
		return charmlog.InfoLevel
	case level <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}
