package serialmux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

// ErrReadOnly is returned when writing to a replay source.
var ErrReadOnly = errors.New("replay port is read-only")

// DefaultReplayByteDelay paces replay close to the console's serial speed.
const DefaultReplayByteDelay = 2 * time.Millisecond

// ReplayOptions configures a ReplayPort.
type ReplayOptions struct {
	// ByteDelay is slept after every byte read. Zero replays at full speed.
	ByteDelay time.Duration
	// Follow waits for data appended to the file instead of returning
	// io.EOF, like tail -f.
	Follow bool
	// WaitTimeout bounds a single wait for appended data so callers can
	// observe cancellation. Defaults to one second.
	WaitTimeout time.Duration
	Clock       timeutil.Clock
}

// ReplayPort plays a raw capture file back one byte per Read, mimicking the
// timing of a live serial line.
type ReplayPort struct {
	path  string
	file  *os.File
	opts  ReplayOptions
	clock timeutil.Clock

	watcher *fsnotify.Watcher

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenReplay opens a capture file for replay.
func OpenReplay(path string, opts ReplayOptions) (*ReplayPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = time.Second
	}

	r := &ReplayPort{
		path:   path,
		file:   f,
		opts:   opts,
		clock:  opts.Clock,
		closed: make(chan struct{}),
	}

	if opts.Follow {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create replay watcher: %w", err)
		}
		if err := w.Add(path); err != nil {
			w.Close()
			f.Close()
			return nil, fmt.Errorf("watch replay file: %w", err)
		}
		r.watcher = w
	}
	return r, nil
}

// Read returns at most one byte.
func (r *ReplayPort) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case <-r.closed:
		return 0, os.ErrClosed
	default:
	}

	n, err := r.file.Read(p[:1])
	if n > 0 {
		if r.opts.ByteDelay > 0 {
			r.clock.Sleep(r.opts.ByteDelay)
		}
		return n, nil
	}
	if errors.Is(err, io.EOF) && r.watcher != nil {
		return 0, r.waitForData()
	}
	return 0, err
}

// waitForData blocks until the file changes, the port closes or the wait
// times out. A nil return means "try again".
func (r *ReplayPort) waitForData() error {
	timer := time.NewTimer(r.opts.WaitTimeout)
	defer timer.Stop()

	select {
	case <-r.closed:
		return os.ErrClosed
	case ev, ok := <-r.watcher.Events:
		if !ok {
			return os.ErrClosed
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			monitoring.Warnf("replay file %s was %s; waiting", r.path, ev.Op)
		}
	case err, ok := <-r.watcher.Errors:
		if !ok {
			return os.ErrClosed
		}
		monitoring.Warnf("replay watcher error: %v", err)
	case <-timer.C:
	}
	return nil
}

// Write always fails.
func (r *ReplayPort) Write(p []byte) (int, error) {
	return 0, ErrReadOnly
}

// Close releases the file and watcher. It is safe to call more than once.
func (r *ReplayPort) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.watcher != nil {
			r.watcher.Close()
		}
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}
