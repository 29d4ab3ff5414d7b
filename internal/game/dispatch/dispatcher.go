// Package dispatch implements the per-session protocol state machine that
// interprets inbound messages against the session and game registries.
package dispatch

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/match"
	"github.com/cory-johannsen/skirmish/internal/game/ruleset"
	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// Dispatcher executes the lobby state machine for every session. It holds
// the two shared registries; all cross-session effects go through them.
type Dispatcher struct {
	sessions    *session.Registry
	games       *match.Registry
	rules       *ruleset.Rules
	maxCapacity int
	logger      *zap.Logger
}

// New creates a Dispatcher over the given registries.
//
// Precondition: sessions, games, and logger must be non-nil. rules may be
// nil to disable content validation. maxCapacity <= 0 disables the game
// size ceiling.
func New(sessions *session.Registry, games *match.Registry, rules *ruleset.Rules, maxCapacity int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sessions:    sessions,
		games:       games,
		rules:       rules,
		maxCapacity: maxCapacity,
		logger:      logger,
	}
}

// Handle processes one inbound message under the session's current state.
//
// Postcondition: Returns false when the session reached its terminal
// logout state; the supervisor then tears the connection down. All
// recoverable conditions are reported to the client and return true.
func (d *Dispatcher) Handle(sess *session.Session, msg protocol.Message) bool {
	switch sess.State() {
	case session.StateLobby:
		return d.handleLobby(sess, msg)
	case session.StateGameRoom:
		return d.handleGameRoom(sess, msg)
	case session.StateActiveGame:
		return d.handleActiveGame(sess, msg)
	}
	d.unknown(sess, msg)
	return true
}

// handleLobby processes messages while the session is in no game.
func (d *Dispatcher) handleLobby(sess *session.Session, msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.GameQuery:
		_ = sess.Send(&protocol.GameQueryAnswer{Games: d.games.List()})

	case *protocol.GameInit:
		if m.GameName == "" {
			_ = sess.SendError("game name must not be empty")
			return true
		}
		if d.maxCapacity > 0 && m.Capacity > d.maxCapacity {
			_ = sess.SendError(fmt.Sprintf("capacity must not exceed %d", d.maxCapacity))
			return true
		}
		if err := d.games.Create(m.GameName, m.Capacity, sess); err != nil {
			_ = sess.SendError(err.Error())
			return true
		}
		sess.SetState(session.StateGameRoom)
		d.logger.Info("game created",
			zap.String("game", m.GameName),
			zap.String("host", sess.Identity),
			zap.Int("capacity", m.Capacity),
		)
		d.sendGameInfo(sess, m.GameName)

	case *protocol.GameJoin:
		if err := d.games.Join(m.GameID, sess); err != nil {
			_ = sess.SendError(err.Error())
			return true
		}
		sess.SetState(session.StateGameRoom)
		d.logger.Debug("player joined game",
			zap.String("game", m.GameID),
			zap.String("player", sess.Identity),
		)
		d.sendGameInfo(sess, m.GameID)

	case *protocol.Logout:
		return d.logout(sess)

	default:
		d.unknown(sess, msg)
	}
	return true
}

// handleGameRoom processes messages while the session is in a forming game.
func (d *Dispatcher) handleGameRoom(sess *session.Session, msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.GameStart:
		gameID, ok := sess.CurrentGame()
		if !ok {
			_ = sess.SendError("you are not in a game")
			sess.SetState(session.StateLobby)
			return true
		}
		members, err := d.games.Start(gameID, sess)
		if err != nil {
			_ = sess.SendError(err.Error())
			return true
		}
		d.logger.Info("game started",
			zap.String("game", gameID),
			zap.String("host", sess.Identity),
			zap.Int("players", len(members)),
		)
		// Everyone, the host included, transitions on the queued
		// GameStarted signal so per-session ordering holds.
		started := &protocol.GameStarted{GameID: gameID}
		for _, member := range members {
			d.signal(member, started)
		}

	case *protocol.GameStarted:
		gameID, ok := sess.CurrentGame()
		if !ok || gameID != m.GameID || !d.games.Started(gameID) {
			// Stale signal: the game is gone or never left forming.
			return true
		}
		_ = sess.Send(m)
		sess.SetState(session.StateActiveGame)

	case *protocol.GameInfo:
		gameID, _ := sess.CurrentGame()
		d.sendGameInfo(sess, gameID)

	case *protocol.GameClosed:
		if _, ok := sess.CurrentGame(); ok {
			// Still seated: the registry has not closed our game.
			return true
		}
		_ = sess.Send(m)
		sess.SetState(session.StateLobby)

	case *protocol.GameLeave:
		d.leaveCurrent(sess)
		sess.SetState(session.StateLobby)
		_ = sess.SendPlain("you left the game")

	case *protocol.PlayerConfig:
		d.applyPlayerConfig(sess, m)

	case *protocol.Logout:
		return d.logout(sess)

	default:
		d.unknown(sess, msg)
	}
	return true
}

// handleActiveGame processes messages while the session's game is running.
func (d *Dispatcher) handleActiveGame(sess *session.Session, msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.Broadcast:
		if m.Sender != "" {
			// Relayed from another member: deliver to our client.
			_ = sess.Send(m)
			return true
		}
		gameID, ok := sess.CurrentGame()
		if !ok {
			return true
		}
		relay := &protocol.Broadcast{Sender: sess.Identity, Content: m.Content}
		for _, member := range d.games.Members(gameID, sess) {
			d.signal(member, relay)
		}

	case *protocol.GameResult:
		gameID, ok := sess.CurrentGame()
		if !ok {
			return true
		}
		if !d.games.IsHost(gameID, sess) {
			_ = sess.SendError(match.ErrNotHost.Error())
			return true
		}
		notice := fmt.Sprintf("Game Over: %s", m.Summary)
		if m.Winner != "" {
			notice = fmt.Sprintf("Game Over: %s wins. %s", m.Winner, m.Summary)
		}
		for _, member := range d.games.Members(gameID, sess) {
			_ = member.SendPlain(notice)
		}
		_ = sess.SendPlain(notice)
		d.leaveCurrent(sess)
		sess.SetState(session.StateLobby)

	case *protocol.GameClosed:
		if _, ok := sess.CurrentGame(); ok {
			// Still seated: the registry has not closed our game.
			return true
		}
		_ = sess.Send(m)
		sess.SetState(session.StateLobby)

	case *protocol.GameLeave:
		d.leaveCurrent(sess)
		sess.SetState(session.StateLobby)
		_ = sess.SendPlain("you left the game")

	case *protocol.Logout:
		return d.logout(sess)

	default:
		d.unknown(sess, msg)
	}
	return true
}

// applyPlayerConfig validates a slot update against the ruleset and applies
// it. A session with no current game is stale, not an error: the update is
// dropped silently, matching the registry's own leniency.
func (d *Dispatcher) applyPlayerConfig(sess *session.Session, cfg *protocol.PlayerConfig) {
	if !d.rules.ValidCivilization(cfg.Civilization) {
		_ = sess.SendError(fmt.Sprintf("unknown civilization %q", cfg.Civilization))
		return
	}
	if !d.rules.ValidTeam(cfg.Team) {
		_ = sess.SendError(fmt.Sprintf("invalid team %d", cfg.Team))
		return
	}
	gameID, ok := sess.CurrentGame()
	if !ok {
		return
	}
	d.games.UpdateConfig(gameID, sess, cfg.Civilization, cfg.Team, cfg.Ready)
}

// sendGameInfo replies with a snapshot of the named game.
func (d *Dispatcher) sendGameInfo(sess *session.Session, gameID string) {
	snap, ok := d.games.Snapshot(gameID)
	if !ok {
		_ = sess.SendError("you are not in a game")
		return
	}
	_ = sess.Send(&protocol.GameInfoAnswer{Game: snap})
}

// logout handles the terminal logout message: acknowledge and end the
// dispatch loop. The supervisor's cleanup runs the leave/close cascade.
func (d *Dispatcher) logout(sess *session.Session) bool {
	_ = sess.Send(&protocol.Logout{})
	return false
}

// unknown reports a message that the current state does not accept.
func (d *Dispatcher) unknown(sess *session.Session, msg protocol.Message) {
	d.logger.Debug("unknown message for state",
		zap.String("player", sess.Identity),
		zap.Stringer("state", sess.State()),
		zap.String("kind", string(msg.Kind())),
	)
	_ = sess.SendError(fmt.Sprintf("unknown message %q in state %s", msg.Kind(), sess.State()))
}

// signal enqueues an inter-session message on a member's inbound mailbox,
// preserving that member's processing order.
func (d *Dispatcher) signal(member *session.Session, msg protocol.Message) {
	if err := member.Inbound.Put(msg); err != nil {
		// An undeliverable signal would strand the member in a stale
		// state. Close the mailbox so its dispatch loop unwinds and the
		// supervisor runs the disconnect cascade.
		member.Inbound.Close()
		d.logger.Warn("closing session after undeliverable signal",
			zap.String("player", member.Identity),
			zap.String("kind", string(msg.Kind())),
			zap.Error(err),
		)
	}
}

// leaveCurrent applies the leave/close protocol for the session's current
// game, if any. A departing host closes the game and every remaining
// member is signalled exactly once; a departing member just vacates its
// slot.
func (d *Dispatcher) leaveCurrent(sess *session.Session) {
	gameID, ok := sess.CurrentGame()
	if !ok {
		return
	}
	if d.games.IsHost(gameID, sess) {
		remaining := d.games.Close(gameID, sess)
		closed := &protocol.GameClosed{GameID: gameID}
		for _, member := range remaining {
			d.signal(member, closed)
		}
		d.logger.Info("game closed by host departure",
			zap.String("game", gameID),
			zap.String("host", sess.Identity),
			zap.Int("notified", len(remaining)),
		)
		return
	}
	d.games.Leave(gameID, sess)
}

// Disconnect runs the connection cleanup cascade: the leave/close protocol
// for the session's game, then removal from the session registry. The
// registry removal is compare-and-remove, so a session evicted by a newer
// login never removes its replacement. Safe to call exactly once per
// supervisor; mailbox closes are idempotent.
func (d *Dispatcher) Disconnect(sess *session.Session) {
	d.leaveCurrent(sess)
	removed := d.sessions.Remove(sess)
	sess.Inbound.Close()
	sess.Outbound.Close()
	d.logger.Debug("session cleaned up",
		zap.String("conn_id", sess.ConnID),
		zap.String("player", sess.Identity),
		zap.Bool("registry_entry_removed", removed),
	)
}
