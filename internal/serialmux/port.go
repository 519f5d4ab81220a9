package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal interface needed for a byte source. Real serial
// ports, replay files and test doubles all satisfy it.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support a bounded read.
// Monitor sets the timeout before its first read so that a quiet line still
// lets the loop observe cancellation.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory opens serial ports. It exists so the command can be
// tested without hardware.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}
