package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/swim.report/internal/monitoring"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// PCAPOptions controls ReplayPCAP.
type PCAPOptions struct {
	// Port keeps only UDP datagrams sent to this port. Zero keeps all.
	Port int
	// Realtime sleeps between packets by their capture-time gaps divided by
	// Speed.
	Realtime bool
	Speed    float64
	Clock    timeutil.Clock
}

// PCAPResult summarises a replay.
type PCAPResult struct {
	Packets   int `json:"packets"`
	Datagrams int `json:"datagrams"`
}

// ReplayPCAP reads a pcap or pcapng capture and calls handle with the payload
// of every matching UDP datagram, in capture order. handle must not retain
// the slice.
func ReplayPCAP(ctx context.Context, path string, opts PCAPOptions, handle func([]byte)) (PCAPResult, error) {
	var res PCAPResult
	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	src, linkType, err := openCapture(bufio.NewReader(f))
	if err != nil {
		return res, fmt.Errorf("failed to read PCAP file %s: %w", path, err)
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	ps := gopacket.NewPacketSource(src, linkType)
	ps.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		packet, err := ps.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			monitoring.Warnf("PCAP file %s is truncated after %d packets", path, res.Packets)
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to read packet %d: %w", res.Packets+1, err)
		}
		res.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		ts := packet.Metadata().Timestamp
		if opts.Realtime && !last.IsZero() && ts.After(last) {
			opts.Clock.Sleep(time.Duration(float64(ts.Sub(last)) / opts.Speed))
		}
		last = ts

		res.Datagrams++
		handle(udp.Payload)
	}

	monitoring.Infof("PCAP replay of %s complete: %d datagrams from %d packets", path, res.Datagrams, res.Packets)
	return res, nil
}

func openCapture(r *bufio.Reader) (gopacket.PacketDataSource, layers.LinkType, error) {
	magic, err := r.Peek(4)
	if err != nil {
		return nil, 0, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, 0, err
		}
		return ng, ng.LinkType(), nil
	}
	rd, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, 0, err
	}
	return rd, rd.LinkType(), nil
}
