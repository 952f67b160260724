package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeHistoryChanged MessageType = "history_changed"
	TypeAck            MessageType = "ack"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// HistoryChangedPayload tells the other devices of a user that the remote
// history moved to ServerSince.
type HistoryChangedPayload struct {
	ServerSince int64    `json:"server_since"`
	RecordIDs   []string `json:"record_ids"`
	DeviceID    string   `json:"device_id,omitempty"`
}

// AckPayload is sent by a client once it has pulled up to ServerSince.
type AckPayload struct {
	ServerSince int64 `json:"server_since"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
