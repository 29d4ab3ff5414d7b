// Package transport provides the TCP listener and line-framed connection
// handling for the lobby server. One frame is one newline-terminated line.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrLineTooLong is returned when an inbound line exceeds the frame limit.
var ErrLineTooLong = errors.New("line exceeds maximum frame size")

// Conn wraps a TCP connection with line-based framing. Reads strip the
// trailing newline (and an optional carriage return); writes append one.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxLineBytes int
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing;
// maxLineBytes <= 0 falls back to 64 KiB.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxLineBytes int) *Conn {
	if maxLineBytes <= 0 {
		maxLineBytes = 64 * 1024
	}
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxLineBytes: maxLineBytes,
	}
}

// ReadLine reads the next frame. The returned bytes exclude the trailing
// \n and any preceding \r.
//
// Postcondition: Returns the next frame, ErrLineTooLong for oversized
// frames, or the transport error (including io.EOF).
func (c *Conn) ReadLine() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	line := make([]byte, 0, 256)
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line, err
		}
		if b == '\n' {
			break
		}
		if len(line) >= c.maxLineBytes {
			return nil, ErrLineTooLong
		}
		line = append(line, b)
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// WriteLine sends one frame followed by \n.
//
// Precondition: data should not contain newline characters.
// Postcondition: data + \n is written to the connection.
func (c *Conn) WriteLine(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write(data); err != nil {
		return err
	}
	_, err := c.raw.Write([]byte{'\n'})
	return err
}

// WriteString sends a text frame.
func (c *Conn) WriteString(text string) error {
	return c.WriteLine([]byte(text))
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable; a blocked
// ReadLine returns with an error.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// String describes the connection for logging.
func (c *Conn) String() string {
	return fmt.Sprintf("conn<%s>", c.raw.RemoteAddr())
}
