package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the listener needs.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// UDPSocketFactoryFunc adapts a function to UDPSocketFactory.
type UDPSocketFactoryFunc func(network string, laddr *net.UDPAddr) (UDPSocket, error)

func (f UDPSocketFactoryFunc) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	return f(network, laddr)
}

// RealUDPSocketFactory opens sockets with net.ListenUDP. *net.UDPConn
// already satisfies UDPSocket.
type RealUDPSocketFactory struct{}

func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPPacket is one datagram served by MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket serves queued datagrams. Once drained, reads fail with a
// timeout error after EmptyReadDelay, like a socket with a deadline set.
type MockUDPSocket struct {
	mu sync.Mutex

	packets        []MockUDPPacket
	readIndex      int
	closed         bool
	readBufferSize int
	readDeadline   time.Time
	readError      error

	LocalAddress       *net.UDPAddr
	SetReadBufferError error
	EmptyReadDelay     time.Duration
}

func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:        packets,
		LocalAddress:   &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: DefaultPort},
		EmptyReadDelay: time.Millisecond,
	}
}

// AddPacket queues data from a fixed loopback sender.
func (m *MockUDPSocket) AddPacket(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{
		Data: append([]byte(nil), data...),
		Addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 50000},
	})
}

// SetReadError makes the next read fail with err.
func (m *MockUDPSocket) SetReadError(err error) {
	m.mu.Lock()
	m.readError = err
	m.mu.Unlock()
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if err := m.readError; err != nil {
		m.readError = nil
		m.mu.Unlock()
		return 0, nil, err
	}
	if m.readIndex >= len(m.packets) {
		delay := m.EmptyReadDelay
		m.mu.Unlock()
		time.Sleep(delay)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
	}
	pkt := m.packets[m.readIndex]
	m.readIndex++
	m.mu.Unlock()

	n := copy(b, pkt.Data)
	return n, pkt.Addr, nil
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.readBufferSize = bytes
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	m.readDeadline = t
	m.mu.Unlock()
	return nil
}

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.LocalAddress }

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadBufferSize returns the value last passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// Drained reports whether every queued packet has been read.
func (m *MockUDPSocket) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex >= len(m.packets)
}

// MockUDPSocketFactory returns Socket from every ListenUDP call.
type MockUDPSocketFactory struct {
	Socket      UDPSocket
	Error       error
	ListenCalls []MockListenCall
}

type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

func NewMockUDPSocketFactory(socket UDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Socket: socket}
}

func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
