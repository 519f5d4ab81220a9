package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port.
	WriteBuffer *bytes.Buffer

	// ReadChunk caps the bytes returned by a single Read. Zero means no cap.
	ReadChunk int

	// ReadError is returned by the next Read call if set.
	ReadError error

	// EOFWhenDrained makes Read return io.EOF once ReadBuffer is empty, like
	// the end of a replay file. Otherwise an empty read behaves like a read
	// timeout and returns 0, nil after EmptyReadDelay.
	EOFWhenDrained bool

	// EmptyReadDelay is slept on an empty read. Defaults to one millisecond.
	EmptyReadDelay time.Duration

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// CloseCalls records the number of Close calls.
	CloseCalls int

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// ReadTimeout is the current read timeout.
	ReadTimeout time.Duration
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read returns buffered data, a one-shot ReadError, or an empty read.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.ReadCalls++

	if t.Closed {
		t.mu.Unlock()
		return 0, errPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		t.mu.Unlock()
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		eof := t.EOFWhenDrained
		delay := t.EmptyReadDelay
		t.mu.Unlock()
		if eof {
			return 0, io.EOF
		}
		if delay <= 0 {
			delay = time.Millisecond
		}
		time.Sleep(delay)
		return 0, nil
	}

	if t.ReadChunk > 0 && len(p) > t.ReadChunk {
		p = p[:t.ReadChunk]
	}
	n, _ := t.ReadBuffer.Read(p)
	t.mu.Unlock()
	return n, nil
}

// Write captures p.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.CloseCalls++
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// SetReadError arms a one-shot read error.
func (t *TestableSerialPort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
}

// Stats returns the read and close call counts.
func (t *TestableSerialPort) Stats() (reads, closes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadCalls, t.CloseCalls
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open.
	Port SerialPorter

	// Error is returned by Open if set.
	Error error

	// OpenCalls records all Open calls.
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
