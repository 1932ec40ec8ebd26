package relay

import (
	"encoding/json"
	"errors"
)

// Server-originated event names.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventAck          = "ack"
)

// Envelope is every frame exchanged after the handshake.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// HandshakeFrame is the first frame a client sends.
type HandshakeFrame struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

type ConnectPayload struct {
	ID string `json:"id"`
}

type ConnectErrorPayload struct {
	Message string `json:"message"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handshake rejections. RejectionMessage gives the text sent to the client.
var (
	ErrNotAuthenticated = errors.New("relay: missing token")
	ErrForbidden        = errors.New("relay: token cannot manage")
	ErrAuthFailed       = errors.New("relay: authentication failed")
)

const (
	MessageNotAuthenticated = "Não autenticado"
	MessageForbidden        = "Sem permissão"
	MessageAuthFailed       = "Falha na autenticação"
)

func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return MessageNotAuthenticated
	case errors.Is(err, ErrForbidden):
		return MessageForbidden
	default:
		return MessageAuthFailed
	}
}

func encodeFrame(event string, data any, ack *int64) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw, Ack: ack})
}
