package duelproto

import (
	"encoding/json"
	"fmt"
)

// Frame is the JSON envelope of every websocket text message.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame of the given type.
func NewFrame(typ, requestID string, payload any) (Frame, error) {
	f := Frame{Type: typ, RequestID: requestID}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	f.Payload = raw
	return f, nil
}

// Decode unmarshals the payload into dst. An empty payload leaves dst untouched.
func (f Frame) Decode(dst any) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

// Client to server events.
const (
	EventCreateGame  = "createGame"
	EventJoinGame    = "joinGame"
	EventReconnect   = "reconnect"
	EventMakeMove    = "makeMove"
	EventResetGame   = "resetGame"
	EventResign      = "resign"
	EventLeaveGame   = "leaveGame"
	EventSendMessage = "sendMessage"
	EventPing        = "ping"
)

// Server to client events.
const (
	EventGameCreated          = "gameCreated"
	EventGameJoined           = "gameJoined"
	EventOpponentJoined       = "opponentJoined"
	EventGameResumed          = "gameResumed"
	EventOpponentReconnected  = "opponentReconnected"
	EventGameMove             = "gameMove"
	EventGameOver             = "gameOver"
	EventGameReset            = "gameReset"
	EventGameAbandoned        = "gameAbandoned"
	EventOpponentDisconnected = "opponentDisconnected"
	EventReceiveMessage       = "receiveMessage"
	EventError                = "error"
	EventPong                 = "pong"
)
