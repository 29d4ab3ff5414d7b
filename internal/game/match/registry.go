package match

import (
	"errors"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// ErrGameExists is returned when creating a game whose name is taken.
var ErrGameExists = errors.New("game already exists")

// ErrGameNotFound is returned when a game lookup yields no result.
var ErrGameNotFound = errors.New("game not found")

// ErrGameFull is returned when joining a game at capacity.
var ErrGameFull = errors.New("game is full")

// ErrGameStarted is returned when joining a game that already started.
var ErrGameStarted = errors.New("game already started")

// ErrNotHost is returned when a non-host attempts a host-only operation.
var ErrNotHost = errors.New("only the host may do that")

// ErrPlayersNotReady is returned when starting a game before every slot
// is ready.
var ErrPlayersNotReady = errors.New("not all players are ready")

// ErrInvalidCapacity is returned when creating a game with capacity < 1.
var ErrInvalidCapacity = errors.New("capacity must be at least 1")

// Registry tracks all live games, keyed by game name. Every exposed
// operation is a single atomic transaction under one lock: concurrent
// observers never see a half-applied membership change. The registry also
// owns the session.currentGame side of the membership link, so both sides
// move together.
type Registry struct {
	mu    sync.Mutex
	games map[string]*Game
}

// NewRegistry creates an empty game Registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]*Game),
	}
}

// Create inserts a new game and seats the host in one transaction.
//
// Precondition: host must not already be in a game (the dispatcher only
// issues creation from the lobby state).
// Postcondition: The game exists with one host slot and host.CurrentGame
// links to it, or ErrGameExists / ErrInvalidCapacity is returned.
func (r *Registry) Create(name string, capacity int, host *session.Session) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.games[name]; exists {
		return ErrGameExists
	}

	g := &Game{
		Name:     name,
		Host:     host.Identity,
		Capacity: capacity,
		Players:  make(map[string]*PlayerSlot),
		Phase:    PhaseForming,
	}
	g.Players[host.Identity] = &PlayerSlot{
		Identity: host.Identity,
		Host:     true,
		sess:     host,
	}
	r.games[name] = g
	host.SetCurrentGame(name)
	return nil
}

// Join seats a session in a forming game as a regular member.
//
// Postcondition: On success the slot exists and sess.CurrentGame links to
// the game. Fails with ErrGameNotFound, ErrGameStarted, or ErrGameFull;
// on failure membership is unchanged.
func (r *Registry) Join(name string, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return ErrGameNotFound
	}
	if g.Phase != PhaseForming {
		return ErrGameStarted
	}

	if slot, ok := g.Players[sess.Identity]; ok {
		// Same identity rejoining after an eviction replaced its
		// connection: take over the existing seat.
		slot.sess = sess
		sess.SetCurrentGame(name)
		return nil
	}
	if len(g.Players) >= g.Capacity {
		return ErrGameFull
	}

	g.Players[sess.Identity] = &PlayerSlot{
		Identity: sess.Identity,
		sess:     sess,
	}
	sess.SetCurrentGame(name)
	return nil
}

// UpdateConfig applies a player's slot configuration. Messages referencing
// a game or slot that no longer exists, or a seat that has been taken over
// by a newer connection, are silently ignored: during races between leave
// and config updates the client may legitimately send stale updates.
func (r *Registry) UpdateConfig(name string, sess *session.Session, civilization string, team int, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return
	}
	slot, ok := g.Players[sess.Identity]
	if !ok || slot.sess != sess {
		return
	}
	slot.Civilization = civilization
	slot.Team = team
	slot.Ready = ready
}

// IsHost reports whether sess currently holds the host slot of the game.
func (r *Registry) IsHost(name string, sess *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return false
	}
	slot, ok := g.Players[g.Host]
	return ok && slot.sess == sess
}

// Started reports whether the named game exists and has left the forming
// phase.
func (r *Registry) Started(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	return ok && g.Phase == PhaseStarted
}

// Leave vacates a non-host member's slot. The game keeps running for the
// remaining members. Idempotent: a missing game or slot, or a seat owned
// by a newer connection, is a no-op.
//
// Precondition: sess must not be the game's host; hosts close instead.
func (r *Registry) Leave(name string, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return
	}
	slot, ok := g.Players[sess.Identity]
	if !ok || slot.sess != sess || slot.Host {
		return
	}
	delete(g.Players, sess.Identity)
	sess.ClearCurrentGame()
}

// Close removes a game and unlinks every member in one transaction.
// It returns the remaining members' sessions (excluding by, when by is a
// member) so the caller can notify them outside the lock.
//
// Postcondition: The game is absent from the registry and no session
// links to it. Idempotent: a missing game returns nil.
func (r *Registry) Close(name string, by *session.Session) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return nil
	}

	var remaining []*session.Session
	for _, slot := range g.Players {
		slot.sess.ClearCurrentGame()
		if slot.sess != by {
			remaining = append(remaining, slot.sess)
		}
	}
	delete(r.games, name)
	return remaining
}

// Start moves a forming game to the started phase.
//
// Postcondition: On success returns every member's session (host included)
// for the started broadcast. Fails with ErrGameNotFound, ErrNotHost (caller
// does not hold the host slot), ErrGameStarted, or ErrPlayersNotReady; on
// failure the phase is unchanged.
func (r *Registry) Start(name string, by *session.Session) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return nil, ErrGameNotFound
	}
	host, ok := g.Players[g.Host]
	if !ok || host.sess != by {
		return nil, ErrNotHost
	}
	if g.Phase != PhaseForming {
		return nil, ErrGameStarted
	}
	for _, slot := range g.Players {
		if !slot.Ready {
			return nil, ErrPlayersNotReady
		}
	}

	g.Phase = PhaseStarted
	members := make([]*session.Session, 0, len(g.Players))
	for _, slot := range g.Players {
		members = append(members, slot.sess)
	}
	return members, nil
}

// Members returns the sessions of every current member of the game,
// excluding by when it is a member.
func (r *Registry) Members(name string, by *session.Session) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return nil
	}
	var members []*session.Session
	for _, slot := range g.Players {
		if slot.sess != by {
			members = append(members, slot.sess)
		}
	}
	return members
}

// List returns a point-in-time summary of every live game.
func (r *Registry) List() []protocol.GameSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summaries := make([]protocol.GameSummary, 0, len(r.games))
	for _, g := range r.games {
		summaries = append(summaries, g.summary())
	}
	return summaries
}

// Snapshot returns the full state of one game.
//
// Postcondition: Returns (snapshot, true) if the game exists.
func (r *Registry) Snapshot(name string) (protocol.GameSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[name]
	if !ok {
		return protocol.GameSnapshot{}, false
	}
	return g.snapshot(), true
}

// Count returns the number of live games.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}
