// Package logging builds the daemon's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the handler and its sinks
type Options struct {
	Level  slog.Level
	Format string
	// File, when set, receives a copy of stdout output and is rotated
	File      string
	Component string
}

// New returns the logger and a closer for the rotating file, if any
func New(opts Options) (*slog.Logger, io.Closer) {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter is New with an explicit primary sink
func NewWithWriter(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		w = io.MultiWriter(w, rot)
		closer = rot
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler
	if opts.Format == "text" {
		h = slog.NewTextHandler(w, handlerOpts)
	} else {
		h = slog.NewJSONHandler(w, handlerOpts)
	}

	logger := slog.New(h)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
