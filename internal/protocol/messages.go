package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatRequest   MessageType = "chat_request"
	TypeClientPing    MessageType = "client_ping"
	TypeResponseDelta MessageType = "response_delta"
	TypeResponseEnd   MessageType = "response_end"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrEmptyQuery      = errors.New("chat_request requires a non-empty query")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

type ChatRequest struct {
	Type     MessageType `json:"type"`
	Query    string      `json:"query"`
	ThreadID string      `json:"thread_id,omitempty"`
	UserID   string      `json:"user_id,omitempty"`
}

type ClientPing struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms"`
}

type ResponseDelta struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
	TextDelta string      `json:"text_delta"`
}

type ResponseEnd struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
	ThreadID  string      `json:"thread_id"`
	UserID    string      `json:"user_id"`
	Source    string      `json:"source,omitempty"`
	Fallback  bool        `json:"fallback,omitempty"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
	MessageID string      `json:"message_id,omitempty"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatRequest:
		var msg ChatRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Query) == "" {
			return nil, ErrEmptyQuery
		}
		return msg, nil
	case TypeClientPing:
		var msg ClientPing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
