package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message type strings on the wire.
const (
	TypeConnectionEstablished = "connection_established"
	TypeTextMessage           = "text_message"
	TypeAIResponse            = "ai_response"
	TypeError                 = "error"
)

// DecodeError codes.
const (
	CodeBadRequest  = "bad_request"
	CodeUnknownType = "unknown_type"
)

// Client-visible error texts.
const (
	// MessageTurnFailed is sent for any generation failure. Upstream details
	// stay in the server log.
	MessageTurnFailed = "Failed to process your message"
	// MessageInvalidTurn is sent for malformed or empty inbound messages.
	MessageInvalidTurn = "Invalid message: expected a text_message with non-empty text"
	// MessageConnected is the handshake text.
	MessageConnected = "Connected to Revolt Motors AI Assistant"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
	// Type is the offending message type for CodeUnknownType.
	Type string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

// IsUnknownType reports whether err is a DecodeError for an unrecognized
// message type. Such messages are logged and dropped, not answered.
func IsUnknownType(err error) bool {
	de, ok := err.(*DecodeError)
	return ok && de.Code == CodeUnknownType
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unknownType(typ string) *DecodeError {
	return &DecodeError{Code: CodeUnknownType, Message: "unknown message type", Param: "type", Type: typ}
}

// ClientTextMessage carries one user turn. TurnID is optional; when set, the
// reply to this turn echoes it.
type ClientTextMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	TurnID uint64 `json:"turn_id,omitempty"`
}

type ServerConnectionEstablished struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ServerAIResponse struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	TurnID uint64 `json:"turn_id,omitempty"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TurnID  uint64 `json:"turn_id,omitempty"`
}

func NewConnectionEstablished() ServerConnectionEstablished {
	return ServerConnectionEstablished{Type: TypeConnectionEstablished, Message: MessageConnected}
}

func NewAIResponse(text string) ServerAIResponse {
	return ServerAIResponse{Type: TypeAIResponse, Text: text}
}

func NewError(message string) ServerError {
	return ServerError{Type: TypeError, Message: message}
}

// NewTextMessage builds a client turn.
func NewTextMessage(text string) ClientTextMessage {
	return ClientTextMessage{Type: TypeTextMessage, Text: text}
}

// NewNumberedTextMessage builds a client turn whose reply echoes turnID.
func NewNumberedTextMessage(turnID uint64, text string) ClientTextMessage {
	return ClientTextMessage{Type: TypeTextMessage, Text: text, TurnID: turnID}
}

func decodeType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badRequest("missing type", "type")
	}
	return typ, nil
}

// DecodeClientMessage decodes a frame sent by a client. The returned text is
// trimmed and never empty.
func DecodeClientMessage(data []byte) (any, error) {
	typ, err := decodeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeTextMessage:
		var msg ClientTextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text_message", "")
		}
		msg.Text = strings.TrimSpace(msg.Text)
		if msg.Text == "" {
			return nil, badRequest("text_message.text is required", "text")
		}
		return msg, nil
	default:
		return nil, unknownType(typ)
	}
}

// DecodeServerMessage decodes a frame sent by the relay.
func DecodeServerMessage(data []byte) (any, error) {
	typ, err := decodeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeConnectionEstablished:
		var msg ServerConnectionEstablished
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid connection_established", "")
		}
		return msg, nil
	case TypeAIResponse:
		var msg ServerAIResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid ai_response", "")
		}
		return msg, nil
	case TypeError:
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid error", "")
		}
		return msg, nil
	default:
		return nil, unknownType(typ)
	}
}
