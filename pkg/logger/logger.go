// Package logger builds the structured logger shared by the server and CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Options controls logger construction.
type Options struct {
	Debug  bool
	Format string // "text" or "json"
	Output io.Writer
}

// New returns a slog logger backed by charmbracelet/log.
func New(debug bool) *slog.Logger {
	return NewWithOptions(Options{Debug: debug})
}

// NewWithOptions returns a slog logger for the given options.
func NewWithOptions(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handler := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           log.InfoLevel,
	})
	if opts.Debug {
		handler.SetLevel(log.DebugLevel)
	}
	if opts.Format == "json" {
		handler.SetFormatter(log.JSONFormatter)
	}

	return slog.New(handler)
}
