// Package lobbyserver wires the transport, the player store, and the game
// state machine into the per-connection session protocol.
package lobbyserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/dispatch"
	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
	"github.com/cory-johannsen/skirmish/internal/transport"
)

// PlayerStore defines the identity/credential operations required by the
// handler.
type PlayerStore interface {
	Create(ctx context.Context, name, password string) (postgres.Player, error)
	Authenticate(ctx context.Context, name, password string) (postgres.Player, error)
}

// Handler implements transport.SessionHandler. It runs the
// pre-authentication exchange, then supervises the receive/dispatch race
// for the authenticated session.
type Handler struct {
	players     PlayerStore
	sessions    *session.Registry
	dispatcher  *dispatch.Dispatcher
	serverName  string
	version     string
	mailboxSize int
	logger      *zap.Logger
}

// NewHandler creates a Handler.
//
// Precondition: players, sessions, dispatcher, and logger must be non-nil;
// version must be non-empty.
func NewHandler(
	players PlayerStore,
	sessions *session.Registry,
	dispatcher *dispatch.Dispatcher,
	serverName string,
	version string,
	mailboxSize int,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		players:     players,
		sessions:    sessions,
		dispatcher:  dispatcher,
		serverName:  serverName,
		version:     version,
		mailboxSize: mailboxSize,
		logger:      logger,
	}
}

// HandleSession implements transport.SessionHandler.
//
// Postcondition: Returns nil on a clean logout or quit, or an error if the
// session ended abnormally. Registry cleanup has run exactly once either way.
func (h *Handler) HandleSession(ctx context.Context, conn *transport.Conn) error {
	start := time.Now()
	addr := conn.RemoteAddr().String()

	h.write(conn, &protocol.Plain{
		Text: fmt.Sprintf("welcome to %s (protocol version %s)", h.serverName, h.version),
	})

	identity, err := h.authenticate(ctx, conn)
	if err != nil {
		return err
	}
	if identity == "" {
		// Client quit before logging in.
		return nil
	}

	h.logger.Info("player logged in",
		zap.String("remote_addr", addr),
		zap.String("player", identity),
		zap.Duration("login_time", time.Since(start)),
	)

	sess := session.New(uuid.NewString(), identity, h.mailboxSize)
	if evicted := h.sessions.Register(sess); evicted != nil {
		h.logger.Info("evicting prior session for identity",
			zap.String("player", identity),
			zap.String("old_conn_id", evicted.ConnID),
			zap.String("new_conn_id", sess.ConnID),
		)
		evicted.SignalLogout()
	}

	return h.supervise(ctx, conn, sess)
}

// authenticate processes the pre-session exchange: a version check followed
// by login or player registration.
//
// Postcondition: Returns (identity, nil) on successful login, ("", nil) if
// the client quit cleanly, or ("", error) on fatal conditions (transport
// failure, version mismatch, rejected credentials).
func (h *Handler) authenticate(ctx context.Context, conn *transport.Conn) (string, error) {
	versionOK := false

	for {
		select {
		case <-ctx.Done():
			h.write(conn, &protocol.Plain{Text: "server shutting down"})
			return "", ctx.Err()
		default:
		}

		line, err := conn.ReadLine()
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.DecodeClient(line)
		if err != nil {
			h.write(conn, &protocol.Error{Text: err.Error()})
			continue
		}

		switch m := msg.(type) {
		case *protocol.VersionCheck:
			if m.Version != h.version {
				h.write(conn, &protocol.Error{
					Text: fmt.Sprintf("unsupported protocol version %q, server speaks %q", m.Version, h.version),
				})
				return "", fmt.Errorf("protocol version mismatch: client %q, server %q", m.Version, h.version)
			}
			versionOK = true
			h.write(conn, &protocol.Plain{Text: "version accepted"})

		case *protocol.AddPlayer:
			if !versionOK {
				h.write(conn, &protocol.Error{Text: "version check required first"})
				continue
			}
			h.addPlayer(ctx, conn, m)

		case *protocol.Login:
			if !versionOK {
				h.write(conn, &protocol.Error{Text: "version check required first"})
				continue
			}
			player, err := h.players.Authenticate(ctx, m.Name, m.Password)
			if err != nil {
				switch {
				case errors.Is(err, postgres.ErrPlayerNotFound),
					errors.Is(err, postgres.ErrInvalidCredentials):
					h.write(conn, &protocol.Error{Text: "invalid credentials"})
					return "", fmt.Errorf("rejected login for %q: %w", m.Name, err)
				default:
					h.logger.Error("authentication error", zap.Error(err))
					h.write(conn, &protocol.Error{Text: "an internal error occurred, please try again"})
					continue
				}
			}
			h.write(conn, &protocol.Plain{Text: fmt.Sprintf("welcome back, %s", player.Name)})
			return player.Name, nil

		case *protocol.Logout:
			h.write(conn, &protocol.Logout{})
			return "", nil

		default:
			h.write(conn, &protocol.Error{Text: "log in first"})
		}
	}
}

// addPlayer registers a new player identity. A taken name is reported to
// the client and the authentication loop continues.
func (h *Handler) addPlayer(ctx context.Context, conn *transport.Conn, m *protocol.AddPlayer) {
	if len(m.Name) < 3 || len(m.Name) > 32 {
		h.write(conn, &protocol.Error{Text: "player name must be 3-32 characters"})
		return
	}
	if len(m.Password) < 6 {
		h.write(conn, &protocol.Error{Text: "password must be at least 6 characters"})
		return
	}

	player, err := h.players.Create(ctx, m.Name, m.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrPlayerExists) {
			h.write(conn, &protocol.Error{Text: "that name is already taken"})
			return
		}
		h.logger.Error("player registration error", zap.Error(err))
		h.write(conn, &protocol.Error{Text: "an internal error occurred, please try again"})
		return
	}
	h.write(conn, &protocol.Plain{Text: fmt.Sprintf("player created: %s, you may now log in", player.Name)})
}

// write encodes and sends one message directly on the connection. Used
// only before the session's outbound writer exists; failures surface on
// the next read.
func (h *Handler) write(conn *transport.Conn, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("encoding message", zap.Error(err))
		return
	}
	_ = conn.WriteLine(data)
}
