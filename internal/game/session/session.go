package session

import (
	"sync"

	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// State is the dispatch state a session is currently in. It is read and
// written only by the session's own dispatch goroutine.
type State int

// Dispatch states.
const (
	// StateLobby is the initial state after authentication.
	StateLobby State = iota
	// StateGameRoom means the session is in a forming game.
	StateGameRoom
	// StateActiveGame means the session is in a started game.
	StateActiveGame
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateGameRoom:
		return "game_room"
	case StateActiveGame:
		return "active_game"
	}
	return "unknown"
}

// Session is the per-connection actor for one authenticated player. The
// connection supervisor owns it for the connection's lifetime; registries
// hold it only as a routing entry.
type Session struct {
	// ConnID is a unique id for this connection, for log correlation.
	ConnID string
	// Identity is the authenticated player name. Immutable.
	Identity string

	// Inbound receives decoded protocol messages for the dispatch loop.
	// The receive loop is its main producer; other sessions may also
	// enqueue signals (logout on eviction, game-closed, game-started).
	Inbound *Mailbox
	// Outbound holds messages awaiting delivery to the client.
	Outbound *Mailbox

	mu          sync.Mutex
	currentGame string
	state       State
}

// New creates a Session for the given identity with mailboxes of the
// given buffer size.
//
// Precondition: identity must be non-empty.
func New(connID, identity string, mailboxSize int) *Session {
	return &Session{
		ConnID:   connID,
		Identity: identity,
		Inbound:  NewMailbox(mailboxSize),
		Outbound: NewMailbox(mailboxSize),
		state:    StateLobby,
	}
}

// State returns the current dispatch state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to a new dispatch state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// CurrentGame returns the id of the game this session is in, or ""
// when it is not in any game.
func (s *Session) CurrentGame() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGame, s.currentGame != ""
}

// SetCurrentGame links the session to a game. Called only by the game
// registry while it holds its own lock, so the membership map and this
// field change together.
func (s *Session) SetCurrentGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentGame = gameID
}

// ClearCurrentGame unlinks the session from its game. Called only by the
// game registry while it holds its own lock.
func (s *Session) ClearCurrentGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentGame = ""
}

// Send enqueues a message for delivery to the client. Delivery is
// best-effort: a full or closed outbound mailbox drops the message.
func (s *Session) Send(msg protocol.Message) error {
	return s.Outbound.Put(msg)
}

// SendError reports a non-fatal error to the client.
func (s *Session) SendError(text string) error {
	return s.Outbound.Put(&protocol.Error{Text: text})
}

// SendPlain sends free-form informational text to the client.
func (s *Session) SendPlain(text string) error {
	return s.Outbound.Put(&protocol.Plain{Text: text})
}

// SignalLogout asks the session to unwind through its normal terminal
// handling by enqueueing a logout on its inbound mailbox. If the mailbox
// cannot accept it, the inbound mailbox is closed instead, which ends the
// dispatch loop directly.
func (s *Session) SignalLogout() {
	if err := s.Inbound.Put(&protocol.Logout{}); err != nil {
		s.Inbound.Close()
	}
}
