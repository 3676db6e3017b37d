// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	clog "github.com/charmbracelet/log"
)

const TimeFormat = "2006-01-02 15:04:05"

// New returns a timestamped text logger writing to w. An unknown level
// falls back to info.
func New(w io.Writer, level string) *clog.Logger {
	l := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		Prefix:          "streakkeeper",
	})
	lvl, err := clog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = clog.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *clog.Logger {
	return clog.New(io.Discard)
}
