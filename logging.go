package ridinglookup

import (
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var logger atomic.Pointer[log.Logger]

func init() {
	logger.Store(log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "ridinglookup",
		ReportTimestamp: true,
	}))
}

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Logger returns the package logger.
func Logger() *log.Logger {
	return logger.Load()
}
