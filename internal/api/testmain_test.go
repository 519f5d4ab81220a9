package api

import (
	"fmt"
	"sync"

	"github.com/banshee-data/swim.report/internal/monitoring"
)

var logMu sync.Mutex

// captureLog routes monitoring output into lines until restore is called.
func captureLog(lines *[]string) (restore func()) {
	prev := monitoring.SetLogger(func(format string, v ...interface{}) {
		logMu.Lock()
		defer logMu.Unlock()
		*lines = append(*lines, fmt.Sprintf(format, v...))
	})
	return func() { monitoring.SetLogger(prev) }
}
