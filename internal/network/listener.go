// Package network receives full-record datagrams over UDP, from pcap
// captures, or from a synthetic demo feed, and hands them to a dispatcher.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/swim.report/internal/db"
	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/layout"
	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

const (
	DefaultPort = 21003
	// MaxDatagram is the largest payload decoded; longer datagrams are
	// truncated to it.
	MaxDatagram        = 4096
	DefaultReadTimeout  = time.Second
	DefaultLogInterval  = time.Minute
	DefaultRetryBackoff = 250 * time.Millisecond
)

// UDPListenerConfig configures a UDPListener. Only Dispatcher is required.
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	ReadTimeout   time.Duration
	LogInterval   time.Duration
	Source        string
	Layout        layout.FrameLayout
	Dispatcher    *dispatch.Dispatcher
	Diagnostics   db.DiagnosticSink
	Stats         *DatagramStats
	SocketFactory UDPSocketFactory

	// RetryBackoff is slept after a read error that is not a timeout.
	RetryBackoff time.Duration
	Clock        timeutil.Clock
}

// UDPListener decodes each datagram with its layout and dispatches the result
// as a full record.
type UDPListener struct {
	cfg       UDPListenerConfig
	total     int
	closeOnce sync.Once
}

func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultLogInterval
	}
	if cfg.Source == "" {
		cfg.Source = "udp"
	}
	if len(cfg.Layout.Fields) == 0 {
		cfg.Layout = layout.RTDLayout()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NewDatagramStats(cfg.Clock)
	}
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = NewRealUDPSocketFactory()
	}
	return &UDPListener{cfg: cfg, total: cfg.Layout.TotalLength()}
}

// Stats returns the listener's counters.
func (l *UDPListener) Stats() *DatagramStats { return l.cfg.Stats }

// Start listens until ctx is done or the socket is closed. It returns
// ctx.Err() on cancellation and nil when the socket closes underneath it.
// The stats logger stops before Start returns.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := l.cfg.SocketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	closeSock := func() { l.closeOnce.Do(func() { sock.Close() }) }
	defer closeSock()

	if l.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Warnf("failed to set UDP receive buffer size to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	monitoring.Infof("UDP listener started on %s (%s)", sock.LocalAddr(), l.cfg.Layout)

	statsCtx, stopStats := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.logStats(statsCtx)
	}()
	defer wg.Wait()
	defer stopStats()

	// One spare byte reveals datagrams longer than MaxDatagram.
	buf := make([]byte, MaxDatagram+1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sock.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))

		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Warnf("UDP read error: %v", err)
			l.cfg.Clock.Sleep(l.cfg.RetryBackoff)
			continue
		}
		if n > MaxDatagram {
			monitoring.Debugf("oversize datagram from %v", from)
		}
		l.HandleDatagram(buf[:n])
	}
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := l.cfg.Clock.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.cfg.Stats.LogStats(l.cfg.Source)
		}
	}
}

// HandleDatagram decodes and dispatches one payload. Short payloads are still
// decoded, with the missing fields left blank.
func (l *UDPListener) HandleDatagram(data []byte) {
	l.cfg.Stats.AddDatagram(len(data))

	if len(data) > MaxDatagram {
		l.cfg.Stats.AddOversize()
		l.diagnose(db.DiagnosticOversize, len(data), fmt.Sprintf("truncated to %d bytes", MaxDatagram), nil)
		data = data[:MaxDatagram]
	}
	if len(data) < l.total {
		l.cfg.Stats.AddShort()
		l.diagnose(db.DiagnosticShort, len(data), fmt.Sprintf("expected %d bytes", l.total), data)
	}

	rec := race.FullRecord{Fields: layout.Decode(data, l.cfg.Layout)}
	if _, ok := l.cfg.Dispatcher.Dispatch(l.cfg.Source, rec); ok {
		l.cfg.Stats.AddDispatched()
	}
}

func (l *UDPListener) diagnose(kind db.DiagnosticKind, length int, detail string, payload []byte) {
	if l.cfg.Diagnostics == nil {
		return
	}
	d := db.Diagnostic{
		Source:  l.cfg.Source,
		Kind:    kind,
		Length:  length,
		Detail:  detail,
		Payload: append([]byte(nil), payload...),
	}
	if err := l.cfg.Diagnostics.RecordDiagnostic(d); err != nil {
		monitoring.Warnf("failed to record diagnostic: %v", err)
	}
}
