package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

// DatagramSnapshot is one reporting interval of DatagramStats.
type DatagramSnapshot struct {
	Datagrams  int64         `json:"datagrams"`
	Bytes      int64         `json:"bytes"`
	Oversize   int64         `json:"oversize"`
	Short      int64         `json:"short"`
	Dispatched int64         `json:"dispatched"`
	Interval   time.Duration `json:"interval"`
}

// DatagramStats counts datagrams seen by a listener or pcap replay.
type DatagramStats struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	cur       DatagramSnapshot
	lastReset time.Time
}

func NewDatagramStats(clock timeutil.Clock) *DatagramStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DatagramStats{clock: clock, lastReset: clock.Now()}
}

func (s *DatagramStats) AddDatagram(bytes int) {
	s.mu.Lock()
	s.cur.Datagrams++
	s.cur.Bytes += int64(bytes)
	s.mu.Unlock()
}

func (s *DatagramStats) AddOversize() {
	s.mu.Lock()
	s.cur.Oversize++
	s.mu.Unlock()
}

func (s *DatagramStats) AddShort() {
	s.mu.Lock()
	s.cur.Short++
	s.mu.Unlock()
}

func (s *DatagramStats) AddDispatched() {
	s.mu.Lock()
	s.cur.Dispatched++
	s.mu.Unlock()
}

// Peek returns the counters accumulated since the last reset.
func (s *DatagramStats) Peek() DatagramSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.cur
	snap.Interval = s.clock.Now().Sub(s.lastReset)
	return snap
}

// GetAndReset returns the current counters and starts a new interval.
func (s *DatagramStats) GetAndReset() DatagramSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	snap := s.cur
	snap.Interval = now.Sub(s.lastReset)
	s.cur = DatagramSnapshot{}
	s.lastReset = now
	return snap
}

// LogStats logs and resets the counters. Quiet intervals are not logged.
func (s *DatagramStats) LogStats(source string) {
	snap := s.GetAndReset()
	if snap.Datagrams == 0 {
		return
	}
	secs := snap.Interval.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("%s stats (/sec): %.1f datagrams, %.1f KB", source,
		float64(snap.Datagrams)/secs, float64(snap.Bytes)/secs/1024)
	if snap.Oversize > 0 || snap.Short > 0 {
		msg += fmt.Sprintf(", %d oversize, %d short", snap.Oversize, snap.Short)
	}
	monitoring.Infof("%s", msg)
}
