// Package monitoring holds the process-wide diagnostic logger.
//
// Logf keeps the printf-style hook that the rest of the tree calls into. By
// default it is backed by a zerolog console writer so every line carries a
// timestamp and level; tests can swap it out with SetLogger.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = newConsoleLogger(os.Stderr)
)

// LogFunc is a printf-style log hook.
type LogFunc func(format string, v ...interface{})

var logf atomic.Pointer[LogFunc]

func init() {
	SetLogger(func(format string, v ...interface{}) {
		Infof(format, v...)
	})
}

// Logf is the package-level diagnostic logger. It writes at info level to the
// zerolog backend unless replaced by SetLogger.
func Logf(format string, v ...interface{}) {
	(*logf.Load())(format, v...)
}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

// SetLogger replaces the hook behind Logf and returns the previous one.
// Passing nil will set a no-op logger. It may be called while other goroutines
// are logging.
func SetLogger(f LogFunc) (prev LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	if old := logf.Swap(&f); old != nil {
		prev = *old
	}
	return prev
}

// SetOutput points the zerolog backend at w. JSON output is used when json is
// true, otherwise the human console format.
func SetOutput(w io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()
	level := base.GetLevel()
	if json {
		base = zerolog.New(w).With().Timestamp().Logger().Level(level)
		return
	}
	base = newConsoleLogger(w).Level(level)
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and applies
// it to the backend.
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	base = base.Level(lvl)
	mu.Unlock()
	return nil
}

// Logger returns the zerolog backend, e.g. to derive component loggers.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debugf logs at debug level.
func Debugf(format string, v ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, v...)
}

// Infof logs at info level.
func Infof(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

// Warnf logs at warn level.
func Warnf(format string, v ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, v...)
}

// Errorf logs at error level.
func Errorf(format string, v ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, v...)
}
