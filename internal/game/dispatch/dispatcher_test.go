package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/skirmish/internal/game/match"
	"github.com/cory-johannsen/skirmish/internal/game/ruleset"
	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/protocol"
)

func newDispatcher(t *testing.T) (*Dispatcher, *session.Registry, *match.Registry) {
	t.Helper()
	sessions := session.NewRegistry()
	games := match.NewRegistry()
	rules := ruleset.NewRules([]*ruleset.Civilization{
		{ID: "romans", Name: "Romans"},
		{ID: "gauls", Name: "Gauls"},
	}, 4)
	d := New(sessions, games, rules, 8, zaptest.NewLogger(t))
	return d, sessions, games
}

func connect(t *testing.T, sessions *session.Registry, identity string) *session.Session {
	t.Helper()
	sess := session.New("conn-"+identity, identity, 16)
	require.Nil(t, sessions.Register(sess))
	return sess
}

// drainOutbound collects everything currently queued for the client.
func drainOutbound(sess *session.Session) []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case msg := <-sess.Outbound.Messages():
			out = append(out, msg)
		default:
			return out
		}
	}
}

// pumpInbound processes queued inter-session signals the way the
// supervisor's dispatch loop would.
func pumpInbound(d *Dispatcher, sess *session.Session) {
	for {
		select {
		case msg := <-sess.Inbound.Messages():
			d.Handle(sess, msg)
		default:
			return
		}
	}
}

func lastError(t *testing.T, msgs []protocol.Message) string {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if e, ok := msgs[i].(*protocol.Error); ok {
			return e.Text
		}
	}
	t.Fatalf("no error among %d messages", len(msgs))
	return ""
}

func TestGameQueryListsGames(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	require.NoError(t, games.Create("open", 4, connect(t, sessions, "bob")))

	d.Handle(alice, &protocol.GameQuery{})

	msgs := drainOutbound(alice)
	require.Len(t, msgs, 1)
	answer := msgs[0].(*protocol.GameQueryAnswer)
	require.Len(t, answer.Games, 1)
	assert.Equal(t, "open", answer.Games[0].Name)
	assert.Equal(t, "bob", answer.Games[0].Host)
}

func TestGameInitCreatesAndTransitions(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})

	assert.Equal(t, session.StateGameRoom, alice.State())
	assert.Equal(t, 1, games.Count())

	msgs := drainOutbound(alice)
	require.Len(t, msgs, 1)
	info := msgs[0].(*protocol.GameInfoAnswer)
	assert.Equal(t, "skirmish-1", info.Game.Name)
	assert.Equal(t, "alice", info.Game.Host)
}

func TestGameInitRejectsEmptyName(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")

	d.Handle(alice, &protocol.GameInit{GameName: "", Capacity: 2})

	assert.Equal(t, session.StateLobby, alice.State())
	lastError(t, drainOutbound(alice))
}

func TestGameInitRejectsOversizedCapacity(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")

	d.Handle(alice, &protocol.GameInit{GameName: "huge", Capacity: 9})

	assert.Equal(t, session.StateLobby, alice.State())
	assert.Equal(t, 0, games.Count())
	lastError(t, drainOutbound(alice))
}

func TestGameInitDuplicateNameStaysInLobby(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "dup", Capacity: 2})
	d.Handle(bob, &protocol.GameInit{GameName: "dup", Capacity: 2})

	assert.Equal(t, session.StateLobby, bob.State())
	lastError(t, drainOutbound(bob))
}

func TestJoinFullGameReported(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "solo", Capacity: 1})
	d.Handle(bob, &protocol.GameJoin{GameID: "solo"})

	assert.Equal(t, session.StateLobby, bob.State())
	assert.Equal(t, match.ErrGameFull.Error(), lastError(t, drainOutbound(bob)))
}

func TestFullGameFlow(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})
	require.Equal(t, session.StateGameRoom, bob.State())

	// Only the host may start.
	d.Handle(bob, &protocol.GameStart{})
	assert.Equal(t, match.ErrNotHost.Error(), lastError(t, drainOutbound(bob)))

	// Not everyone is ready.
	d.Handle(alice, &protocol.GameStart{})
	assert.Equal(t, match.ErrPlayersNotReady.Error(), lastError(t, drainOutbound(alice)))

	d.Handle(alice, &protocol.PlayerConfig{Civilization: "romans", Team: 1, Ready: true})
	d.Handle(bob, &protocol.PlayerConfig{Civilization: "gauls", Team: 2, Ready: true})

	d.Handle(alice, &protocol.GameStart{})

	// The start notification reaches every member, the host included,
	// through its own inbound mailbox.
	pumpInbound(d, alice)
	pumpInbound(d, bob)

	assert.Equal(t, session.StateActiveGame, alice.State())
	assert.Equal(t, session.StateActiveGame, bob.State())

	for _, sess := range []*session.Session{alice, bob} {
		var started bool
		for _, msg := range drainOutbound(sess) {
			if s, ok := msg.(*protocol.GameStarted); ok {
				started = true
				assert.Equal(t, "skirmish-1", s.GameID)
			}
		}
		assert.True(t, started, "%s never saw the start", sess.Identity)
	}

	snap, ok := games.Snapshot("skirmish-1")
	require.True(t, ok)
	assert.Equal(t, "started", snap.Phase)
}

func startGame(t *testing.T, d *Dispatcher, host, member *session.Session, name string) {
	t.Helper()
	d.Handle(host, &protocol.GameInit{GameName: name, Capacity: 2})
	d.Handle(member, &protocol.GameJoin{GameID: name})
	d.Handle(host, &protocol.PlayerConfig{Civilization: "romans", Team: 1, Ready: true})
	d.Handle(member, &protocol.PlayerConfig{Civilization: "gauls", Team: 2, Ready: true})
	d.Handle(host, &protocol.GameStart{})
	pumpInbound(d, host)
	pumpInbound(d, member)
	require.Equal(t, session.StateActiveGame, host.State())
	require.Equal(t, session.StateActiveGame, member.State())
	drainOutbound(host)
	drainOutbound(member)
}

func TestGameStartedSignalRequiresStartedGame(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})
	drainOutbound(bob)

	// A start signal for a game still forming must not promote the member.
	d.Handle(bob, &protocol.GameStarted{GameID: "skirmish-1"})

	assert.Equal(t, session.StateGameRoom, bob.State())
	assert.Empty(t, drainOutbound(bob))
	snap, ok := games.Snapshot("skirmish-1")
	require.True(t, ok)
	assert.Equal(t, "forming", snap.Phase)
}

func TestGameClosedSignalIgnoredWhileSeated(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "duel", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "duel"})
	drainOutbound(bob)

	// A close signal while the registry still seats us changes nothing:
	// no transition, no vacated slot, no way into a second game.
	d.Handle(bob, &protocol.GameClosed{GameID: "duel"})

	assert.Equal(t, session.StateGameRoom, bob.State())
	gameID, ok := bob.CurrentGame()
	require.True(t, ok)
	assert.Equal(t, "duel", gameID)
	snap, ok := games.Snapshot("duel")
	require.True(t, ok)
	assert.Len(t, snap.Players, 2)

	d.Handle(bob, &protocol.GameInit{GameName: "second", Capacity: 2})
	assert.Contains(t, lastError(t, drainOutbound(bob)), "game_init")
	assert.Equal(t, 1, games.Count())

	// The genuine close, after the registry vacates the seat, goes through.
	d.Handle(alice, &protocol.GameLeave{})
	pumpInbound(d, bob)
	assert.Equal(t, session.StateLobby, bob.State())
}

func TestGameClosedSignalIgnoredWhileSeatedInActiveGame(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")
	startGame(t, d, alice, bob, "skirmish-1")

	d.Handle(bob, &protocol.GameClosed{GameID: "skirmish-1"})

	assert.Equal(t, session.StateActiveGame, bob.State())
	assert.Empty(t, drainOutbound(bob))
}

func TestUndeliverableSignalClosesMemberInbox(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := session.New("conn-bob", "bob", 1)
	require.Nil(t, sessions.Register(bob))

	d.Handle(alice, &protocol.GameInit{GameName: "duel", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "duel"})

	// Fill bob's one-slot inbound mailbox so the close signal cannot land.
	require.NoError(t, bob.Inbound.Put(&protocol.GameQuery{}))

	d.Handle(alice, &protocol.GameLeave{})

	// Bob's dispatch loop must unwind instead of idling in a dead game.
	assert.True(t, bob.Inbound.IsClosed())
}

func TestBroadcastRelays(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")
	startGame(t, d, alice, bob, "skirmish-1")

	d.Handle(alice, &protocol.Broadcast{Content: "attack at dawn"})
	pumpInbound(d, bob)

	msgs := drainOutbound(bob)
	require.Len(t, msgs, 1)
	relayed := msgs[0].(*protocol.Broadcast)
	assert.Equal(t, "alice", relayed.Sender)
	assert.Equal(t, "attack at dawn", relayed.Content)

	// The sender does not hear its own relay.
	pumpInbound(d, alice)
	assert.Empty(t, drainOutbound(alice))
}

func TestGameResultHostOnly(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")
	startGame(t, d, alice, bob, "skirmish-1")

	d.Handle(bob, &protocol.GameResult{Winner: "bob", Summary: "nope"})
	assert.Equal(t, match.ErrNotHost.Error(), lastError(t, drainOutbound(bob)))
	assert.Equal(t, 1, games.Count())

	d.Handle(alice, &protocol.GameResult{Winner: "alice", Summary: "flawless"})

	// The result closes the game; members get the notice and the close.
	assert.Equal(t, session.StateLobby, alice.State())
	assert.Equal(t, 0, games.Count())

	pumpInbound(d, bob)
	assert.Equal(t, session.StateLobby, bob.State())

	var sawNotice, sawClosed bool
	for _, msg := range drainOutbound(bob) {
		switch m := msg.(type) {
		case *protocol.Plain:
			sawNotice = true
			assert.Contains(t, m.Text, "alice wins")
		case *protocol.GameClosed:
			sawClosed = true
		}
	}
	assert.True(t, sawNotice)
	assert.True(t, sawClosed)
}

func TestMemberLeaveKeepsGame(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})

	d.Handle(bob, &protocol.GameLeave{})

	assert.Equal(t, session.StateLobby, bob.State())
	_, in := bob.CurrentGame()
	assert.False(t, in)
	snap, ok := games.Snapshot("skirmish-1")
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
}

func TestHostLeaveClosesGame(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})

	d.Handle(alice, &protocol.GameLeave{})

	assert.Equal(t, session.StateLobby, alice.State())
	assert.Equal(t, 0, games.Count())

	// The member is pushed back to the lobby by the close signal.
	pumpInbound(d, bob)
	assert.Equal(t, session.StateLobby, bob.State())
	var sawClosed bool
	for _, msg := range drainOutbound(bob) {
		if c, ok := msg.(*protocol.GameClosed); ok {
			sawClosed = true
			assert.Equal(t, "skirmish-1", c.GameID)
		}
	}
	assert.True(t, sawClosed)
}

func TestDisconnectRunsLeaveCascade(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})

	// The host's connection dies.
	d.Disconnect(alice)

	assert.Equal(t, 0, games.Count())
	_, ok := sessions.Get("alice")
	assert.False(t, ok)
	assert.True(t, alice.Inbound.IsClosed())
	assert.True(t, alice.Outbound.IsClosed())

	pumpInbound(d, bob)
	assert.Equal(t, session.StateLobby, bob.State())
	var sawClosed bool
	for _, msg := range drainOutbound(bob) {
		if _, ok := msg.(*protocol.GameClosed); ok {
			sawClosed = true
		}
	}
	assert.True(t, sawClosed)
}

func TestDisconnectEvictedSessionKeepsReplacement(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	old := connect(t, sessions, "alice")

	replacement := session.New("conn-2", "alice", 16)
	evicted := sessions.Register(replacement)
	require.Same(t, old, evicted)

	d.Disconnect(old)

	got, ok := sessions.Get("alice")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestLogoutIsTerminal(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")

	cont := d.Handle(alice, &protocol.Logout{})

	assert.False(t, cont)
	msgs := drainOutbound(alice)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindLogout, msgs[0].Kind())
}

func TestUnknownMessageForState(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")

	cont := d.Handle(alice, &protocol.GameStart{})

	assert.True(t, cont)
	assert.Contains(t, lastError(t, drainOutbound(alice)), "lobby")
	assert.Equal(t, session.StateLobby, alice.State())
}

func TestPlayerConfigValidation(t *testing.T) {
	d, sessions, games := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	drainOutbound(alice)

	d.Handle(alice, &protocol.PlayerConfig{Civilization: "atlanteans", Team: 1, Ready: true})
	assert.Contains(t, lastError(t, drainOutbound(alice)), "atlanteans")

	d.Handle(alice, &protocol.PlayerConfig{Civilization: "romans", Team: 9, Ready: true})
	assert.Contains(t, lastError(t, drainOutbound(alice)), "team")

	snap, _ := games.Snapshot("skirmish-1")
	assert.False(t, snap.Players[0].Ready)
}

func TestStalePlayerConfigDroppedSilently(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	bob := connect(t, sessions, "bob")

	d.Handle(alice, &protocol.GameInit{GameName: "skirmish-1", Capacity: 2})
	d.Handle(bob, &protocol.GameJoin{GameID: "skirmish-1"})
	drainOutbound(bob)

	// The host closes while bob's config update is in flight.
	d.Handle(alice, &protocol.GameLeave{})
	d.Handle(bob, &protocol.PlayerConfig{Civilization: "gauls", Team: 2, Ready: true})

	// Stale, not an error: the update just vanishes.
	for _, msg := range drainOutbound(bob) {
		_, isErr := msg.(*protocol.Error)
		assert.False(t, isErr, "stale config update produced an error")
	}
}

func TestGameInfoOutsideGame(t *testing.T) {
	d, sessions, _ := newDispatcher(t)
	alice := connect(t, sessions, "alice")
	alice.SetState(session.StateGameRoom)

	d.Handle(alice, &protocol.GameInfo{})
	lastError(t, drainOutbound(alice))
}
