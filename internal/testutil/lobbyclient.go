package testutil

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// LobbyClient is a line-delimited JSON test client for integration testing
// against a running lobby server.
type LobbyClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLobbyClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LobbyClient or fails the test.
func NewLobbyClient(t *testing.T, addr string) *LobbyClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	client := &LobbyClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}

	t.Logf("lobby client connected to %s [%s]", addr, time.Since(start))
	return client
}

// Send encodes a message and writes it as one frame.
//
// Postcondition: The encoded message plus a newline is written to the connection.
func (c *LobbyClient) Send(msg protocol.Message) {
	c.t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		c.t.Fatalf("encoding %q: %v", msg.Kind(), err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		c.t.Fatalf("sending %q: %v", msg.Kind(), err)
	}
}

// SendRaw writes an arbitrary frame, for exercising decode failures.
func (c *LobbyClient) SendRaw(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// ReadMessage reads and decodes the next frame.
//
// Postcondition: Returns the decoded message, or fails the test on timeout
// or decode error.
func (c *LobbyClient) ReadMessage(timeout time.Duration) protocol.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	msg, err := protocol.Decode(line[:len(line)-1])
	if err != nil {
		c.t.Fatalf("decoding frame %q: %v", line, err)
	}
	return msg
}

// Expect reads messages until one of the given kind arrives, skipping
// plain notices along the way.
//
// Postcondition: Returns the first message of the given kind, or fails
// the test if a different non-notice message arrives first.
func (c *LobbyClient) Expect(kind protocol.Kind, timeout time.Duration) protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", kind)
		}
		msg := c.ReadMessage(remaining)
		if msg.Kind() == kind {
			return msg
		}
		if msg.Kind() == protocol.KindPlain {
			continue
		}
		c.t.Fatalf("expected %q, got %q", kind, msg.Kind())
	}
}

// Close closes the underlying connection.
func (c *LobbyClient) Close() {
	c.conn.Close()
}
