package lobbyserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
	"github.com/cory-johannsen/skirmish/internal/transport"
)

// outboundDrainTimeout bounds how long teardown waits for the writer to
// flush queued frames to a client that has stopped reading.
const outboundDrainTimeout = 5 * time.Second

// supervise runs the three per-connection loops: the receiver (socket to
// inbound mailbox), the writer (outbound mailbox to socket), and the
// dispatch loop that drives the session state machine. Whichever loop
// finishes first forces the others down.
//
// Postcondition: dispatcher.Disconnect has run exactly once and both of
// the session's mailboxes are closed before supervise returns.
func (h *Handler) supervise(ctx context.Context, conn *transport.Conn, sess *session.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := h.logger.With(
		zap.String("conn_id", sess.ConnID),
		zap.String("player", sess.Identity),
	)

	start := time.Now()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.receiveLoop(ctx, conn, sess, cancel, log)
	}()

	writerDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(writerDone)
		h.writeLoop(conn, sess, cancel, log)
	}()

	err := h.dispatchLoop(ctx, sess)

	// Teardown order matters: cancel stops the receiver's next read, and
	// Disconnect closes the mailboxes, which lets the writer drain what
	// is still queued, the logout confirmation included, before the
	// socket closes. Closing the socket then unblocks a read already in
	// flight.
	cancel()
	h.dispatcher.Disconnect(sess)
	select {
	case <-writerDone:
	case <-time.After(outboundDrainTimeout):
		log.Debug("outbound drain timed out")
	}
	_ = conn.Close()
	wg.Wait()

	log.Info("session ended",
		zap.Duration("session_time", time.Since(start)),
		zap.Error(err),
	)
	return err
}

// receiveLoop reads frames off the socket, decodes them, and delivers
// them to the session's inbound mailbox. Malformed frames are reported to
// the client and skipped.
func (h *Handler) receiveLoop(
	ctx context.Context,
	conn *transport.Conn,
	sess *session.Session,
	cancel context.CancelFunc,
	log *zap.Logger,
) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("connection read failed", zap.Error(err))
			}
			cancel()
			return
		}
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.DecodeClient(line)
		if err != nil {
			// A garbled frame does not end the session.
			_ = sess.SendError(err.Error())
			continue
		}

		if err := sess.Inbound.Put(msg); err != nil {
			log.Warn("inbound mailbox rejected message",
				zap.String("kind", string(msg.Kind())),
				zap.Error(err),
			)
			cancel()
			return
		}
	}
}

// writeLoop drains the session's outbound mailbox onto the socket. It
// exits when the mailbox closes or a write fails.
func (h *Handler) writeLoop(
	conn *transport.Conn,
	sess *session.Session,
	cancel context.CancelFunc,
	log *zap.Logger,
) {
	for msg := range sess.Outbound.Messages() {
		data, err := protocol.Encode(msg)
		if err != nil {
			log.Error("encoding outbound message",
				zap.String("kind", string(msg.Kind())),
				zap.Error(err),
			)
			continue
		}
		if err := conn.WriteLine(data); err != nil {
			log.Debug("connection write failed", zap.Error(err))
			cancel()
			return
		}
	}
}

// dispatchLoop feeds inbound messages to the dispatcher until the client
// logs out, the mailbox closes, or the connection dies.
func (h *Handler) dispatchLoop(ctx context.Context, sess *session.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sess.Inbound.Messages():
			if !ok {
				// Mailbox closed out from under us, typically by an
				// eviction that could not deliver a logout signal.
				return nil
			}
			if !h.dispatcher.Handle(sess, msg) {
				return nil
			}
		}
	}
}
