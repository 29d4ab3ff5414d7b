// Package protocol defines the wire messages exchanged between clients and
// the lobby server, and the line-delimited JSON codec that frames them.
package protocol

// Kind identifies a protocol message type on the wire.
type Kind string

// Message kinds. Pre-authentication kinds are only valid before a session
// is established; everything else flows through the session dispatcher.
const (
	KindVersionCheck Kind = "version_check"
	KindLogin        Kind = "login"
	KindAddPlayer    Kind = "add_player"

	KindGameQuery       Kind = "game_query"
	KindGameQueryAnswer Kind = "game_query_answer"
	KindGameInit        Kind = "game_init"
	KindGameJoin        Kind = "game_join"
	KindGameStart       Kind = "game_start"
	KindGameStarted     Kind = "game_started_by_host"
	KindGameInfo        Kind = "game_info"
	KindGameInfoAnswer  Kind = "game_info_answer"
	KindGameClosed      Kind = "game_closed_by_host"
	KindGameLeave       Kind = "game_leave"
	KindPlayerConfig    Kind = "player_config"
	KindBroadcast       Kind = "broadcast"
	KindGameResult      Kind = "game_result"
	KindLogout          Kind = "logout"

	KindError Kind = "error"
	KindPlain Kind = "notice"
)

// ServerOrigin reports whether the kind is only ever produced by the
// server: query answers, inter-session signals, errors, and notices.
// Frames of these kinds must never be accepted from a client.
func (k Kind) ServerOrigin() bool {
	switch k {
	case KindGameQueryAnswer, KindGameInfoAnswer, KindGameStarted,
		KindGameClosed, KindError, KindPlain:
		return true
	}
	return false
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

// VersionCheck announces the client protocol version. It must be the first
// message on a new connection.
type VersionCheck struct {
	Version string `json:"version"`
}

// Login authenticates an existing player.
type Login struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AddPlayer registers a new player identity.
type AddPlayer struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// GameQuery asks for a snapshot of all open games.
type GameQuery struct{}

// GameSummary is one entry in a GameQueryAnswer.
type GameSummary struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Players  int    `json:"players"`
	Capacity int    `json:"capacity"`
	Phase    string `json:"phase"`
}

// GameQueryAnswer carries the point-in-time list of games.
type GameQueryAnswer struct {
	Games []GameSummary `json:"games"`
}

// GameInit creates a new game with the sender as host.
type GameInit struct {
	GameName string `json:"game_name"`
	Capacity int    `json:"capacity"`
}

// GameJoin joins an existing game as a regular member.
type GameJoin struct {
	GameID string `json:"game_id"`
}

// GameStart asks the server to start the sender's game. Only the host may
// start, and only once every slot is ready.
type GameStart struct{}

// GameStarted notifies a member that the host started the game.
type GameStarted struct {
	GameID string `json:"game_id"`
}

// GameInfo asks for a snapshot of the sender's current game.
type GameInfo struct{}

// PlayerInfo is one roster entry in a GameInfoAnswer.
type PlayerInfo struct {
	Name         string `json:"name"`
	Host         bool   `json:"host"`
	Civilization string `json:"civilization"`
	Team         int    `json:"team"`
	Ready        bool   `json:"ready"`
}

// GameSnapshot is the full state of one game at a point in time.
type GameSnapshot struct {
	Name     string       `json:"name"`
	Host     string       `json:"host"`
	Capacity int          `json:"capacity"`
	Phase    string       `json:"phase"`
	Players  []PlayerInfo `json:"players"`
}

// GameInfoAnswer carries a GameSnapshot.
type GameInfoAnswer struct {
	Game GameSnapshot `json:"game"`
}

// GameClosed notifies a member that the host closed (or abandoned) the game.
type GameClosed struct {
	GameID string `json:"game_id"`
}

// GameLeave removes the sender from their current game.
type GameLeave struct{}

// PlayerConfig updates the sender's slot in their current game.
type PlayerConfig struct {
	Civilization string `json:"civilization"`
	Team         int    `json:"team"`
	Ready        bool   `json:"ready"`
}

// Broadcast relays arbitrary content to the other members of an active game.
type Broadcast struct {
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// GameResult is sent by the host of an active game to end it.
type GameResult struct {
	Winner  string `json:"winner,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Logout ends the session. The server echoes it back as confirmation
// before closing the connection.
type Logout struct{}

// Error reports a non-fatal protocol or game error to one connection.
type Error struct {
	Text string `json:"text"`
}

// Plain carries free-form informational text to one connection.
type Plain struct {
	Text string `json:"text"`
}

// Kind implementations.

func (VersionCheck) Kind() Kind    { return KindVersionCheck }
func (Login) Kind() Kind           { return KindLogin }
func (AddPlayer) Kind() Kind       { return KindAddPlayer }
func (GameQuery) Kind() Kind       { return KindGameQuery }
func (GameQueryAnswer) Kind() Kind { return KindGameQueryAnswer }
func (GameInit) Kind() Kind        { return KindGameInit }
func (GameJoin) Kind() Kind        { return KindGameJoin }
func (GameStart) Kind() Kind       { return KindGameStart }
func (GameStarted) Kind() Kind     { return KindGameStarted }
func (GameInfo) Kind() Kind        { return KindGameInfo }
func (GameInfoAnswer) Kind() Kind  { return KindGameInfoAnswer }
func (GameClosed) Kind() Kind      { return KindGameClosed }
func (GameLeave) Kind() Kind       { return KindGameLeave }
func (PlayerConfig) Kind() Kind    { return KindPlayerConfig }
func (Broadcast) Kind() Kind       { return KindBroadcast }
func (GameResult) Kind() Kind      { return KindGameResult }
func (Logout) Kind() Kind          { return KindLogout }
func (Error) Kind() Kind           { return KindError }
func (Plain) Kind() Kind           { return KindPlain }
