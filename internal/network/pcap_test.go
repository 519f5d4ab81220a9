package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

type capturedDatagram struct {
	port    uint16
	payload []byte
	at      time.Time
}

func udpPacket(t *testing.T, port uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 20),
		DstIP:    net.IPv4(192, 168, 1, 255),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(port)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writeCapture(t *testing.T, datagrams []capturedDatagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meet.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, dg := range datagrams {
		data := udpPacket(t, dg.port, dg.payload)
		ci := gopacket.CaptureInfo{Timestamp: dg.at, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestReplayPCAP_FiltersByPort(t *testing.T) {
	path := writeCapture(t, []capturedDatagram{
		{port: DefaultPort, payload: []byte("first"), at: t0},
		{port: 5353, payload: []byte("mdns"), at: t0.Add(10 * time.Millisecond)},
		{port: DefaultPort, payload: []byte("second"), at: t0.Add(20 * time.Millisecond)},
	})

	var got []string
	res, err := ReplayPCAP(context.Background(), path, PCAPOptions{Port: DefaultPort}, func(p []byte) {
		got = append(got, string(p))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)
	assert.Equal(t, PCAPResult{Packets: 3, Datagrams: 2}, res)

	got = nil
	_, err = ReplayPCAP(context.Background(), path, PCAPOptions{}, func(p []byte) {
		got = append(got, string(p))
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

var t0 = time.Date(2024, 6, 8, 9, 30, 0, 0, time.UTC)

func TestReplayPCAP_RealtimePacing(t *testing.T) {
	path := writeCapture(t, []capturedDatagram{
		{port: DefaultPort, payload: []byte("a"), at: t0},
		{port: DefaultPort, payload: []byte("b"), at: t0.Add(200 * time.Millisecond)},
		{port: DefaultPort, payload: []byte("c"), at: t0.Add(600 * time.Millisecond)},
	})
	clock := timeutil.NewMockClock(t0)

	_, err := ReplayPCAP(context.Background(), path, PCAPOptions{Realtime: true, Speed: 2, Clock: clock}, func([]byte) {})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Sleeps())
}

func TestReplayPCAP_Errors(t *testing.T) {
	_, err := ReplayPCAP(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), PCAPOptions{}, func([]byte) {})
	assert.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.pcap")
	require.NoError(t, os.WriteFile(junk, []byte("this is not a capture"), 0o644))
	_, err = ReplayPCAP(context.Background(), junk, PCAPOptions{}, func([]byte) {})
	assert.Error(t, err)

	path := writeCapture(t, []capturedDatagram{{port: DefaultPort, payload: []byte("x"), at: t0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReplayPCAP(ctx, path, PCAPOptions{}, func([]byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayPCAP_IntoListener(t *testing.T) {
	path := writeCapture(t, []capturedDatagram{
		{port: DefaultPort, payload: rtdDatagram(map[string]string{"event_number": "021", "heat_number": "001"}), at: t0},
	})
	d := dispatch.New(dispatch.Options{})
	defer d.Close()
	sub := d.Subscribe()
	l := NewUDPListener(UDPListenerConfig{Dispatcher: d, Source: "pcap"})

	_, err := ReplayPCAP(context.Background(), path, PCAPOptions{Port: DefaultPort}, l.HandleDatagram)
	require.NoError(t, err)

	u := nextUpdate(t, sub)
	assert.Equal(t, "pcap", u.Source)
	assert.Equal(t, "021", *u.Delta.EventNumber)
}
