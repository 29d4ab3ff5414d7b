// Package match provides the Game entity and the process-wide registry of
// live games, with atomic membership and lifecycle operations.
package match

import (
	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
)

// Phase is a game's lifecycle stage.
type Phase int

// Game phases.
const (
	// PhaseForming means the game is open in the lobby and players may join.
	PhaseForming Phase = iota
	// PhaseStarted means the host started the game.
	PhaseStarted
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	if p == PhaseStarted {
		return "started"
	}
	return "forming"
}

// PlayerSlot is one participant's configuration inside a game.
type PlayerSlot struct {
	// Identity is the participant's player name.
	Identity string
	// Host marks the slot of the game's host.
	Host bool
	// Civilization is the chosen civilization id.
	Civilization string
	// Team is the chosen team number.
	Team int
	// Ready marks the participant as ready to start.
	Ready bool

	// sess routes notifications and anchors the slot to one connection:
	// a stale session for the same identity cannot vacate its successor's
	// seat.
	sess *session.Session
}

// Game is one lobby/match instance. Fields are mutated only by the
// Registry while it holds its lock; callers see games through snapshots.
type Game struct {
	// Name is the unique game id, chosen at creation.
	Name string
	// Host is the identity of the hosting player.
	Host string
	// Capacity is the maximum roster size.
	Capacity int
	// Players maps identity to slot. len(Players) <= Capacity always,
	// and Host is always a key.
	Players map[string]*PlayerSlot
	// Phase is the lifecycle stage.
	Phase Phase
}

// summary builds the wire summary for a game listing.
func (g *Game) summary() protocol.GameSummary {
	return protocol.GameSummary{
		Name:     g.Name,
		Host:     g.Host,
		Players:  len(g.Players),
		Capacity: g.Capacity,
		Phase:    g.Phase.String(),
	}
}

// snapshot builds the full wire snapshot of a game, host slot first.
func (g *Game) snapshot() protocol.GameSnapshot {
	snap := protocol.GameSnapshot{
		Name:     g.Name,
		Host:     g.Host,
		Capacity: g.Capacity,
		Phase:    g.Phase.String(),
		Players:  make([]protocol.PlayerInfo, 0, len(g.Players)),
	}
	if host, ok := g.Players[g.Host]; ok {
		snap.Players = append(snap.Players, playerInfo(host))
	}
	for identity, slot := range g.Players {
		if identity == g.Host {
			continue
		}
		snap.Players = append(snap.Players, playerInfo(slot))
	}
	return snap
}

func playerInfo(slot *PlayerSlot) protocol.PlayerInfo {
	return protocol.PlayerInfo{
		Name:         slot.Identity,
		Host:         slot.Host,
		Civilization: slot.Civilization,
		Team:         slot.Team,
		Ready:        slot.Ready,
	}
}
