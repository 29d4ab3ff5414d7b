package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a malformed inbound frame. It is never fatal to the
// connection; the receive loop reports it and keeps reading.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame: %s", e.Reason)
}

// envelope is the wire framing for one message: a type tag plus the
// message payload.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serialises a message into one line-delimited JSON frame,
// without the trailing newline.
//
// Precondition: msg must be non-nil.
// Postcondition: Returns a single-line JSON frame or a non-nil error.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msg.Kind(), err)
	}
	env := envelope{Type: msg.Kind()}
	// Omit empty payloads for field-less messages.
	if string(payload) != "{}" {
		env.Payload = payload
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", msg.Kind(), err)
	}
	return data, nil
}

// Decode parses one line-delimited frame into a typed message.
//
// Postcondition: Returns the decoded Message, or a *DecodeError for
// malformed or unrecognised frames.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed frame"}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing message type"}
	}

	msg := newMessage(env.Type)
	if msg == nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("unrecognised message type %q", env.Type)}
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("malformed %s payload", env.Type)}
		}
	}
	return msg, nil
}

// DecodeClient parses one frame received from a client. It accepts the
// same frames as Decode minus the server-origin kinds, so a client cannot
// forge query answers or the signals sessions exchange with each other.
//
// Postcondition: Returns the decoded Message, or a *DecodeError for
// malformed, unrecognised, or server-origin frames.
func DecodeClient(line []byte) (Message, error) {
	msg, err := Decode(line)
	if err != nil {
		return nil, err
	}
	if msg.Kind().ServerOrigin() {
		return nil, &DecodeError{Reason: fmt.Sprintf("server-only message type %q", msg.Kind())}
	}
	return msg, nil
}

// newMessage returns a zero value of the concrete type for kind, or nil
// for unknown kinds.
func newMessage(kind Kind) Message {
	switch kind {
	case KindVersionCheck:
		return &VersionCheck{}
	case KindLogin:
		return &Login{}
	case KindAddPlayer:
		return &AddPlayer{}
	case KindGameQuery:
		return &GameQuery{}
	case KindGameQueryAnswer:
		return &GameQueryAnswer{}
	case KindGameInit:
		return &GameInit{}
	case KindGameJoin:
		return &GameJoin{}
	case KindGameStart:
		return &GameStart{}
	case KindGameStarted:
		return &GameStarted{}
	case KindGameInfo:
		return &GameInfo{}
	case KindGameInfoAnswer:
		return &GameInfoAnswer{}
	case KindGameClosed:
		return &GameClosed{}
	case KindGameLeave:
		return &GameLeave{}
	case KindPlayerConfig:
		return &PlayerConfig{}
	case KindBroadcast:
		return &Broadcast{}
	case KindGameResult:
		return &GameResult{}
	case KindLogout:
		return &Logout{}
	case KindError:
		return &Error{}
	case KindPlain:
		return &Plain{}
	}
	return nil
}
