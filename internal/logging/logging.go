// Package logging builds the slog logger used by the nbslot binary.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a slog.Logger writing to w through a charmbracelet/log
// handler. format is text, json or logfmt; level is debug, info, warn or
// error.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var f log.Formatter
	switch format {
	case "", "text":
		f = log.TextFormatter
	case "json":
		f = log.JSONFormatter
	case "logfmt":
		f = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       f,
		ReportTimestamp: true,
		Prefix:          "nbslot",
	})
	return slog.New(handler), nil
}
