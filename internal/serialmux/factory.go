package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports through go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory returns a factory for hardware ports.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the serial device at path.
func (RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	return OpenPort(path, opts)
}

// OpenPort opens the serial device at path with opts.
func OpenPort(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// ListPorts returns the serial devices visible to the OS.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
