package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/protocol"
)

func TestMailboxPutAndReceive(t *testing.T) {
	mb := NewMailbox(4)

	require.NoError(t, mb.Put(&protocol.Plain{Text: "one"}))
	require.NoError(t, mb.Put(&protocol.Plain{Text: "two"}))

	first := <-mb.Messages()
	assert.Equal(t, "one", first.(*protocol.Plain).Text)
	second := <-mb.Messages()
	assert.Equal(t, "two", second.(*protocol.Plain).Text)
}

func TestMailboxFullDoesNotBlock(t *testing.T) {
	mb := NewMailbox(1)

	require.NoError(t, mb.Put(&protocol.Plain{Text: "fits"}))
	err := mb.Put(&protocol.Plain{Text: "dropped"})
	assert.Error(t, err)

	// The first message is still deliverable.
	msg := <-mb.Messages()
	assert.Equal(t, "fits", msg.(*protocol.Plain).Text)
}

func TestMailboxCloseIsIdempotent(t *testing.T) {
	mb := NewMailbox(4)
	require.NoError(t, mb.Put(&protocol.Plain{Text: "queued"}))

	mb.Close()
	mb.Close()
	assert.True(t, mb.IsClosed())

	assert.Error(t, mb.Put(&protocol.Plain{Text: "late"}))

	// Buffered messages drain, then the channel closes.
	msg, ok := <-mb.Messages()
	require.True(t, ok)
	assert.Equal(t, "queued", msg.(*protocol.Plain).Text)
	_, ok = <-mb.Messages()
	assert.False(t, ok)
}

func TestMailboxDefaultBufferSize(t *testing.T) {
	mb := NewMailbox(0)
	for i := 0; i < 64; i++ {
		require.NoError(t, mb.Put(&protocol.Plain{Text: "m"}))
	}
	assert.Error(t, mb.Put(&protocol.Plain{Text: "overflow"}))
}
