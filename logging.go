package tsch

import (
	"os"

	"github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Structured logging setup (SPEC_FULL.md Ambient: Logging).
 *
 *------------------------------------------------------------------*/

// NewLogger builds a charmbracelet/log logger writing to stderr at the
// given level ("debug", "info", "warn", "error"). Unknown levels fall
// back to info.
func NewLogger(level string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
