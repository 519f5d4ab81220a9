package network

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/swim.report/internal/layout"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

const (
	DefaultDemoInterval   = 100 * time.Millisecond
	DefaultDemoHeatLength = 75 * time.Second
)

var demoSwimmers = []string{
	"Liam Smith", "Noah Johnson", "Oliver Williams", "Elijah Brown",
	"William Jones", "James Garcia", "Benjamin Miller", "Lucas Davis",
}

// Per-lane offsets added to the running clock for each swimmer's time.
var demoLaneOffsets = []time.Duration{
	0, 120 * time.Millisecond, 250 * time.Millisecond, 400 * time.Millisecond,
	30 * time.Millisecond, 180 * time.Millisecond, 320 * time.Millisecond, 500 * time.Millisecond,
}

// DemoOptions configures a DemoSocket.
type DemoOptions struct {
	// Interval between datagrams.
	Interval time.Duration
	// HeatLength is how long each heat runs before the next one starts.
	HeatLength time.Duration
	Layout     layout.FrameLayout
	Clock      timeutil.Clock
}

// DemoSocket is a UDPSocket that synthesizes RTD datagrams for a running
// heat, so the whole pipeline can run without a console attached.
type DemoSocket struct {
	opts  DemoOptions
	start time.Time
	local *net.UDPAddr
	from  *net.UDPAddr

	mu     sync.Mutex
	closed bool
}

func NewDemoSocket(opts DemoOptions) *DemoSocket {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDemoInterval
	}
	if opts.HeatLength <= 0 {
		opts.HeatLength = DefaultDemoHeatLength
	}
	if len(opts.Layout.Fields) == 0 {
		opts.Layout = layout.RTDLayout()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &DemoSocket{
		opts:  opts,
		start: opts.Clock.Now(),
		local: &net.UDPAddr{IP: net.IPv4zero, Port: DefaultPort},
		from:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort},
	}
}

// Factory returns a UDPSocketFactory that always hands out d.
func (d *DemoSocket) Factory() UDPSocketFactory {
	return UDPSocketFactoryFunc(func(string, *net.UDPAddr) (UDPSocket, error) { return d, nil })
}

// Values returns the field values broadcast elapsed after the demo started.
func (d *DemoSocket) Values(elapsed time.Duration) map[string]string {
	heat := 2 + int(elapsed/d.opts.HeatLength)
	inHeat := elapsed % d.opts.HeatLength

	v := map[string]string{
		"running_time":  race.FormatTime(inHeat),
		"event_title_1": "Demo Men's 100 Free",
		"event_title_2": "Finals",
		"event_number":  "005",
		"heat_number":   fmt.Sprintf("%03d", heat%1000),
	}
	for i, name := range demoSwimmers {
		t := inHeat + demoLaneOffsets[i]
		v[fmt.Sprintf("lane_%d", i+1)] = fmt.Sprintf("%s %.2f", initials(name), t.Seconds())
	}
	return v
}

// Datagram encodes Values(elapsed) with the socket's layout.
func (d *DemoSocket) Datagram(elapsed time.Duration) []byte {
	return layout.Encode(d.Values(elapsed), d.opts.Layout)
}

func initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		b.WriteByte(part[0])
	}
	return b.String()
}

// ReadFromUDP waits one interval and returns the next datagram.
func (d *DemoSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if d.isClosed() {
		return 0, nil, net.ErrClosed
	}
	d.opts.Clock.Sleep(d.opts.Interval)
	if d.isClosed() {
		return 0, nil, net.ErrClosed
	}
	n := copy(b, d.Datagram(d.opts.Clock.Now().Sub(d.start)))
	return n, d.from, nil
}

func (d *DemoSocket) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *DemoSocket) SetReadBuffer(int) error         { return nil }
func (d *DemoSocket) SetReadDeadline(time.Time) error { return nil }
func (d *DemoSocket) LocalAddr() net.Addr             { return d.local }

func (d *DemoSocket) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
