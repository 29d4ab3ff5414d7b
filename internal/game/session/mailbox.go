// Package session provides the per-connection session actor and the
// process-wide registry of connected sessions.
package session

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// Mailbox is a bounded, close-safe message queue. A session owns two: an
// inbound mailbox fed by its receive loop (and by other sessions signalling
// it), and an outbound mailbox drained by its connection writer.
type Mailbox struct {
	mu       sync.Mutex
	messages chan protocol.Message
	closed   bool
}

// NewMailbox creates a Mailbox with the given buffer size.
//
// Postcondition: Returns an open Mailbox; bufferSize <= 0 falls back to 64.
func NewMailbox(bufferSize int) *Mailbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Mailbox{
		messages: make(chan protocol.Message, bufferSize),
	}
}

// Put enqueues a message without blocking.
//
// Postcondition: The message is enqueued, or an error is returned if the
// mailbox is closed or full. Put never blocks callers holding registry locks.
func (m *Mailbox) Put(msg protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("mailbox is closed")
	}
	select {
	case m.messages <- msg:
		return nil
	default:
		return fmt.Errorf("mailbox full")
	}
}

// Messages returns the read-only message channel. The channel is closed
// when the mailbox is closed; consumers should range over it.
func (m *Mailbox) Messages() <-chan protocol.Message {
	return m.messages
}

// Close marks the mailbox closed and closes the channel. Idempotent.
//
// Postcondition: Further Put calls return an error; consumers see the
// channel drain and close.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.messages)
	}
}

// IsClosed reports whether the mailbox has been closed.
func (m *Mailbox) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
