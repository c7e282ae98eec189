// Package log provides mage's ambient logger, built on
// github.com/charmbracelet/log the same way client2/connection.go and
// client2/arq_test.go do: one prefixed logger per component, written to
// stderr unless the embedding application supplies its own writer.
package log

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger prefixed with component, logging at level (one of
// "debug", "info", "warn", "error") to w. A nil w defaults to os.Stderr.
func New(component string, level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
		Level:           parseLevel(level),
	})
}

// parseLevel maps the small set of level names mage's CLI collaborator
// accepts to charmbracelet/log's Level type, defaulting to Info on an
// unrecognized name rather than failing session setup over a logging
// misconfiguration.
func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
