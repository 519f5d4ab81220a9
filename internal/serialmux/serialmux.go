// Package serialmux reads the timing console's serial byte stream, splits it
// into frames and feeds classified records to a dispatcher. Raw frames can be
// tailed by any number of subscribers for debugging.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/swim.report/internal/db"
	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

// ReadChunkSize is the most bytes requested from the port per read.
const ReadChunkSize = 256

// Defaults for Config.
const (
	DefaultReadTimeout  = time.Second
	DefaultRetryBackoff = 250 * time.Millisecond
)

// Config wires a SerialMux into the pipeline.
type Config struct {
	// Source labels dispatched updates, e.g. "serial" or "replay".
	Source     string
	Classifier *race.Classifier
	Dispatcher *dispatch.Dispatcher

	// Diagnostics receives unrecognized, malformed and overflow events.
	// Optional.
	Diagnostics db.DiagnosticSink
	// Capture receives a copy of every byte read. Optional.
	Capture io.Writer

	ReadTimeout  time.Duration
	RetryBackoff time.Duration
	Clock        timeutil.Clock
}

// MonitorStats are counters maintained by Monitor.
type MonitorStats struct {
	BytesRead    uint64      `json:"bytes_read"`
	ReadErrors   uint64      `json:"read_errors"`
	Dispatched   uint64      `json:"dispatched"`
	Unrecognized uint64      `json:"unrecognized"`
	Malformed    uint64      `json:"malformed"`
	Framer       FramerStats `json:"framer"`
}

// SerialMux owns one byte source and runs the framer → classifier →
// dispatcher pipeline over it.
type SerialMux[T SerialPorter] struct {
	port T
	cfg  Config

	framer *Framer

	statsMu sync.Mutex
	stats   MonitorStats

	subscribers  map[string]chan string
	subscriberMu sync.Mutex

	closing   bool
	started   bool
	closingMu sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSerialMux creates a SerialMux over port.
func NewSerialMux[T SerialPorter](port T, cfg Config) *SerialMux[T] {
	if cfg.Source == "" {
		cfg.Source = "serial"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SerialMux[T]{
		port:        port,
		cfg:         cfg,
		framer:      NewFramer(),
		subscribers: make(map[string]chan string),
		done:        make(chan struct{}),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel of one-line frame descriptions for the debug
// tail. Slow subscribers miss lines; the pipeline never waits for them.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 64)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.isClosing() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a tail subscriber.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Monitor reads the port until ctx is done, the source reports io.EOF, or
// Close is called. Read errors are logged and retried. Monitor owns the port
// and closes it on return. It may run only once.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	s.closingMu.Lock()
	if s.started {
		s.closingMu.Unlock()
		return errors.New("serialmux: Monitor already started")
	}
	s.started = true
	closing := s.closing
	s.closingMu.Unlock()

	defer close(s.done)
	defer s.closePort()
	if closing {
		return nil
	}

	if tp, ok := any(s.port).(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
			monitoring.Warnf("%s: set read timeout: %v", s.cfg.Source, err)
		}
	}

	buf := make([]byte, ReadChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosing() {
			return nil
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			s.handleChunk(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			monitoring.Infof("%s: end of input", s.cfg.Source)
			return nil
		}
		if s.isClosing() {
			return nil
		}

		s.statsMu.Lock()
		s.stats.ReadErrors++
		s.statsMu.Unlock()
		monitoring.Warnf("%s: read error: %v", s.cfg.Source, err)
		s.cfg.Clock.Sleep(s.cfg.RetryBackoff)
	}
}

func (s *SerialMux[T]) handleChunk(chunk []byte) {
	if s.cfg.Capture != nil {
		if _, err := s.cfg.Capture.Write(chunk); err != nil {
			monitoring.Warnf("%s: capture write: %v", s.cfg.Source, err)
		}
	}

	before := s.framer.Stats()
	frames := s.framer.Feed(chunk)
	after := s.framer.Stats()

	s.statsMu.Lock()
	s.stats.BytesRead += uint64(len(chunk))
	s.stats.Framer = after
	s.statsMu.Unlock()

	if dropped := after.DroppedBytes - before.DroppedBytes; dropped > 0 {
		monitoring.Warnf("%s: framer overflow, dropped %d bytes", s.cfg.Source, dropped)
		s.diagnose(db.Diagnostic{
			Kind:   db.DiagnosticOverflow,
			Length: int(dropped),
			Detail: fmt.Sprintf("kept trailing %d bytes", MaxBuffer),
		})
	}

	for _, frame := range frames {
		s.handleFrame(frame)
	}
}

func (s *SerialMux[T]) handleFrame(frame []byte) {
	if s.cfg.Classifier == nil {
		s.publish(fmt.Sprintf("%s len=%d %s", race.KindUnrecognized, len(frame), hex.EncodeToString(frame)))
		return
	}

	rec, err := s.cfg.Classifier.Classify(frame)
	if err != nil {
		s.statsMu.Lock()
		s.stats.Malformed++
		s.statsMu.Unlock()
		monitoring.Warnf("%s: dropping %d-byte frame: %v", s.cfg.Source, len(frame), err)
		s.diagnose(db.Diagnostic{
			Kind:    db.DiagnosticMalformed,
			Length:  len(frame),
			Detail:  err.Error(),
			Payload: frame,
		})
		s.publish(fmt.Sprintf("malformed len=%d %s", len(frame), hex.EncodeToString(frame)))
		return
	}

	s.publish(fmt.Sprintf("%s len=%d %s", rec.Kind(), len(frame), hex.EncodeToString(frame)))

	if u, ok := rec.(race.Unrecognized); ok {
		s.statsMu.Lock()
		s.stats.Unrecognized++
		s.statsMu.Unlock()
		s.diagnose(db.Diagnostic{
			Kind:    db.DiagnosticUnrecognized,
			Length:  len(u.Raw),
			Payload: u.Raw,
		})
		return
	}

	if s.cfg.Dispatcher != nil {
		if _, ok := s.cfg.Dispatcher.Dispatch(s.cfg.Source, rec); ok {
			s.statsMu.Lock()
			s.stats.Dispatched++
			s.statsMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) diagnose(d db.Diagnostic) {
	if s.cfg.Diagnostics == nil {
		return
	}
	d.Source = s.cfg.Source
	if d.At.IsZero() {
		d.At = s.cfg.Clock.Now()
	}
	if err := s.cfg.Diagnostics.RecordDiagnostic(d); err != nil {
		monitoring.Warnf("%s: record diagnostic: %v", s.cfg.Source, err)
	}
}

func (s *SerialMux[T]) publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the outer loop
		}
	}
}

// Stats returns a snapshot of the pipeline counters.
func (s *SerialMux[T]) Stats() MonitorStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *SerialMux[T]) closePort() {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
}

// Close stops Monitor and closes tail subscribers. A running Monitor closes
// the port itself on its next loop iteration and Close waits for it; with no
// Monitor ever started, Close releases the port. The port is closed exactly
// once however many times Close is called.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	started := s.started
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	if started {
		<-s.done
	} else {
		s.closePort()
	}
	return s.closeErr
}

// AttachAdminRoutes attaches debugging endpoints to the mux served at /debug/.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	prefix := s.cfg.Source

	debug.HandleFunc(prefix+"-stats", "frame pipeline counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Stats())
	})

	// Server-Sent Events stream of classified frames.
	debug.HandleSilentFunc(prefix+"-frames", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
