package serialmux

import (
	"fmt"
	"os"
	"sync"
)

// CaptureWriter appends every byte read from a port to a file so a session
// can be replayed later.
type CaptureWriter struct {
	mu    sync.Mutex
	file  *os.File
	bytes int64
}

// OpenCapture opens path for appending, creating it if needed.
func OpenCapture(path string) (*CaptureWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return &CaptureWriter{file: f}, nil
}

func (c *CaptureWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.file.Write(p)
	c.bytes += int64(n)
	return n, err
}

// Bytes returns the number of bytes written since open.
func (c *CaptureWriter) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *CaptureWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
