package serialmux

import "bytes"

// Frame delimiters used by the console's serial output.
const (
	STX byte = 0x02
	ETX byte = 0x04
)

// MaxBuffer caps the unframed bytes a Framer retains. When exceeded, only the
// trailing MaxBuffer bytes are kept.
const MaxBuffer = 4096

// FramerStats are counters for diagnostics.
type FramerStats struct {
	Buffered     int    `json:"buffered"`
	Frames       uint64 `json:"frames"`
	Overflows    uint64 `json:"overflows"`
	DroppedBytes uint64 `json:"dropped_bytes"`
}

// Framer extracts STX/ETX delimited payloads from an arbitrarily chunked
// byte stream. The frames it returns do not depend on how the stream was
// split, as long as the buffer never overflows. A Framer is not safe for
// concurrent use.
type Framer struct {
	buf   []byte
	stats FramerStats
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk and returns every frame completed by it, in stream
// order. Returned slices are owned by the caller.
func (f *Framer) Feed(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var frames [][]byte
	consumed := 0
	for {
		rest := f.buf[consumed:]
		start := bytes.IndexByte(rest, STX)
		if start < 0 {
			break
		}
		end := bytes.IndexByte(rest[start+1:], ETX)
		if end < 0 {
			break
		}
		end += start + 1

		frame := make([]byte, end-start-1)
		copy(frame, rest[start+1:end])
		frames = append(frames, frame)
		consumed += end + 1
	}

	if consumed > 0 {
		n := copy(f.buf, f.buf[consumed:])
		f.buf = f.buf[:n]
	}
	if len(f.buf) > MaxBuffer {
		drop := len(f.buf) - MaxBuffer
		n := copy(f.buf, f.buf[drop:])
		f.buf = f.buf[:n]
		f.stats.Overflows++
		f.stats.DroppedBytes += uint64(drop)
	}

	f.stats.Frames += uint64(len(frames))
	return frames
}

// Buffered returns the number of bytes held waiting for a frame to complete.
func (f *Framer) Buffered() int { return len(f.buf) }

// Stats returns a copy of the counters.
func (f *Framer) Stats() FramerStats {
	s := f.stats
	s.Buffered = len(f.buf)
	return s
}

// Reset discards buffered bytes. Counters are kept.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
