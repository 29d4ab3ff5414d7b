package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_GameInit(t *testing.T) {
	line, err := Encode(GameInit{GameName: "frontier", Capacity: 4})
	require.NoError(t, err)
	assert.NotContains(t, string(line), "\n")

	msg, err := Decode(line)
	require.NoError(t, err)

	init, ok := msg.(*GameInit)
	require.True(t, ok, "expected *GameInit, got %T", msg)
	assert.Equal(t, "frontier", init.GameName)
	assert.Equal(t, 4, init.Capacity)
}

func TestEncodeDecode_FieldlessMessage(t *testing.T) {
	line, err := Encode(GameQuery{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"game_query"}`, string(line))

	msg, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, KindGameQuery, msg.Kind())
}

func TestEncodeDecode_PlayerConfig(t *testing.T) {
	line, err := Encode(PlayerConfig{Civilization: "meridian", Team: 2, Ready: true})
	require.NoError(t, err)

	msg, err := Decode(line)
	require.NoError(t, err)

	cfg, ok := msg.(*PlayerConfig)
	require.True(t, ok)
	assert.Equal(t, "meridian", cfg.Civilization)
	assert.Equal(t, 2, cfg.Team)
	assert.True(t, cfg.Ready)
}

func TestDecode_MalformedFrame(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	require.Error(t, err)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Error(), "malformed")
}

func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{"name":"ada"}}`))
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "missing message type")
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "teleport")
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{"type":"game_init","payload":{"capacity":"four"}}`))
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Reason, "game_init")
}

func TestDecodeClient_RejectsServerOriginKinds(t *testing.T) {
	for _, kind := range []Kind{
		KindGameQueryAnswer, KindGameInfoAnswer, KindGameStarted,
		KindGameClosed, KindError, KindPlain,
	} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := DecodeClient([]byte(`{"type":"` + string(kind) + `"}`))
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Contains(t, decErr.Reason, "server-only")
		})
	}
}

func TestDecodeClient_AcceptsClientKinds(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"game_join","payload":{"game_id":"frontier"}}`))
	require.NoError(t, err)
	join, ok := msg.(*GameJoin)
	require.True(t, ok)
	assert.Equal(t, "frontier", join.GameID)
}

func TestEncodeDecode_GameInfoAnswer(t *testing.T) {
	answer := GameInfoAnswer{Game: GameSnapshot{
		Name:     "frontier",
		Host:     "ada",
		Capacity: 2,
		Phase:    "forming",
		Players: []PlayerInfo{
			{Name: "ada", Host: true, Civilization: "meridian", Team: 1, Ready: true},
			{Name: "ben", Team: 2},
		},
	}}

	line, err := Encode(answer)
	require.NoError(t, err)

	msg, err := Decode(line)
	require.NoError(t, err)

	got, ok := msg.(*GameInfoAnswer)
	require.True(t, ok)
	assert.Equal(t, answer.Game, got.Game)
}
