// Package logging builds the charmbracelet loggers used across scopecomms.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once      sync.Once
	singleton *log.Logger
)

// Default returns the process-wide logger writing to stderr.
func Default() *log.Logger {
	once.Do(func() {
		singleton = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "scopecomms",
		})
		singleton.SetLevel(log.InfoLevel)
	})
	return singleton
}

// ParseLevel maps a config string to a level. The empty string is "info".
func ParseLevel(s string) (log.Level, error) {
	if s == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// SetLevel applies a parsed level to the default logger.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	Default().SetLevel(lvl)
	return nil
}

// SetOutput redirects the default logger. Loggers derived with Named
// before the call keep writing to the old destination.
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// New creates a standalone logger writing to w.
func New(w io.Writer, prefix string, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          prefix,
	})
	l.SetLevel(level)
	return l
}

// Named derives a logger from the default one with the given prefix.
func Named(prefix string) *log.Logger {
	return Default().WithPrefix(prefix)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
